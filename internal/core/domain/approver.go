package domain

// BotApprover is one entry in the approval gate allow-list: a trusted
// automated identity and its registered P-256 public key (PEM, PKIX).
type BotApprover struct {
	Login        string `yaml:"login" mapstructure:"login"`
	PublicKeyPEM string `yaml:"public_key" mapstructure:"public_key"`
}
