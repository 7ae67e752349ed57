package logfields

import "go.uber.org/zap"

func Event(val string) zap.Field {
	return zap.String("event", val)
}

func ProvisionID(val string) zap.Field {
	return zap.String("provision_id", val)
}

func Step(val string) zap.Field {
	return zap.String("provision_step", val)
}
