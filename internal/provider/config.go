package provider

// Config holds provider adapter configuration.
type Config struct {
	// Type selects the provider: "twilio", "vonage", or "stdout".
	Type string `mapstructure:"type"`
	// From is the sender phone number or identity.
	From string `mapstructure:"from"`
	// Endpoint overrides the provider API base URL (tests, regional endpoints).
	Endpoint string `mapstructure:"endpoint"`

	// Twilio credentials.
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`

	// Vonage credentials.
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
}
