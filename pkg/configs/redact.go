package configs

const redactedValue = "******"

func redact(s *string) {
	if *s != "" {
		*s = redactedValue
	}
}

// Redacted 返回隐去密码、密钥与令牌的副本，用于打印或上报.
func (c AppConfig) Redacted() AppConfig {
	redact(&c.DB.Password)
	redact(&c.S3.SecretAccessKey)
	redact(&c.MQ.Common.Password)
	redact(&c.KV.Redis.Password)
	redact(&c.KV.NATS.Password)
	redact(&c.Engine.Token)
	redact(&c.Inference.Token)

	return c
}
