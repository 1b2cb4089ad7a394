package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Config struct {
	Env            string `env:"ENVIRONMENT"`
	ServerPort     int    `env:"SERVER_PORT" envDefault:"8080"`
	BasicAuthCreds string `env:"BASIC_AUTH_CREDS"`

	Mailchimp struct {
		APIKey       string `env:"MAILCHIMP_API_KEY"`
		ServerPrefix string `env:"MAILCHIMP_SERVER_PREFIX"`
		AudienceID   string `env:"MAILCHIMP_AUDIENCE_ID"`
		ReplyTo      string `env:"MAILCHIMP_REPLY_TO" envDefault:"noreply@newsr.io"`
		FromName     string `env:"MAILCHIMP_FROM_NAME" envDefault:"City Digest"`
		TimeoutSecs  int    `env:"MAILCHIMP_TIMEOUT_SECS" envDefault:"30"`
	}

	Mailgun struct {
		Domain      string `env:"MAILGUN_DOMAIN"`
		APIKey      string `env:"MAILGUN_API_KEY"`
		SenderFrom  string `env:"MAILGUN_SENDER_FROM"`
		TimeoutSecs int    `env:"MAILGUN_TIMEOUT_SECS" envDefault:"30"`
	}

	// Internal recipients that receive pre-flight test digests before
	// each segment send. Comma-separated user ids.
	TestTeamUserIDs string `env:"TEST_TEAM_USER_IDS"`

	log   *zap.Logger
	creds map[string]string
}

func NewConfig(lc fx.Lifecycle, log *zap.Logger) *Config {
	cfg := &Config{log: log}
	env.Parse(cfg)

	creds, err := cfg.parseCreds()
	if err != nil {
		if cfg.Env != "production" {
			cfg.log.Sugar().Infof("%s (credentials will be set to default outside production)", err)
			creds = map[string]string{"admin": "password"}
		} else {
			cfg.log.Sugar().Panic(err)
		}
	}
	cfg.creds = creds

	return cfg
}

func (cfg *Config) GetCreds() map[string]string {
	return cfg.creds
}

// TestTeam returns the parsed TEST_TEAM_USER_IDS list. Tokens that are
// not positive integers are dropped.
func (cfg *Config) TestTeam() []uint {
	if cfg.TestTeamUserIDs == "" {
		return nil
	}

	ids := make([]uint, 0)
	for _, token := range strings.Split(cfg.TestTeamUserIDs, ",") {
		id, err := strconv.ParseUint(strings.TrimSpace(token), 10, 64)
		if err != nil || id == 0 {
			continue
		}
		ids = append(ids, uint(id))
	}
	return ids
}

func (cfg *Config) parseCreds() (map[string]string, error) {
	if cfg.BasicAuthCreds == "" {
		return nil, errors.New("BASIC_AUTH_CREDS envvar must be populated")
	}

	creds := strings.Split(cfg.BasicAuthCreds, ",")
	if len(creds) == 0 {
		return nil, errors.New("BASIC_AUTH_CREDS envvar should be filled with comma-separated values -- user1:pass1,user2:pass2")
	}

	result := make(map[string]string)
	for _, cred := range creds {
		userPass := strings.Split(cred, ":")
		if len(userPass) != 2 {
			return nil, fmt.Errorf("failed to parse '%s', each credential should be delimited by a colon -- user1:pass1,user2:pass2", cred)
		}

		user, pass := userPass[0], userPass[1]
		result[strings.Trim(user, " ")] = strings.Trim(pass, " ")
	}

	return result, nil
}
