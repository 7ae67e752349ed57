package logfields

import "go.uber.org/zap"

func Stage(val string) zap.Field {
	return zap.String("course.stage", val)
}

func Person(val string) zap.Field {
	return zap.String("course.person", val)
}

func State(val string) zap.Field {
	return zap.String("course.state", val)
}
