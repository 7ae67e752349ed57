package logfields

import "go.uber.org/zap"

func Org(val string) zap.Field {
	return zap.String("github.org", val)
}

func Repository(val string) zap.Field {
	return zap.String("github.repository", val)
}

func Team(val string) zap.Field {
	return zap.String("github.team", val)
}

func TeamNumber(val int64) zap.Field {
	return zap.Int64("github.team_number", val)
}

func Member(val string) zap.Field {
	return zap.String("github.member", val)
}

func Members(val []string) zap.Field {
	return zap.Strings("github.members", val)
}

func Permission(val string) zap.Field {
	return zap.String("github.permission", val)
}
