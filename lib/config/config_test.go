// config_test.go tests config files
package config

import (
	"os"
	"testing"
)

// fileToTest is a relative path to the configuration file to test (ie. safesave/cmd/conf.json)
var fileToTest string = "../../cmd/conf.json"

// TestConfig extracts config from a file and checks values loaded
func TestConfig(t *testing.T) {
	os.Setenv("SAFESAVE_ENVFILE", "does-not-exist.env")
	defer os.Unsetenv("SAFESAVE_ENVFILE")

	//extract configuration
	conf, err := ExtractConfiguration(fileToTest)
	if err != nil {
		t.Errorf("Error reading config file:%e\n", err)
	} else {
		// lets check the port
		if conf.Port != "3000" {
			t.Errorf("config port is not the expected %s", conf.Port)
		}
		// and the contracts
		if len(conf.Contracts.Named()) != 5 {
			t.Errorf("contracts do not match the expected %v", conf.Contracts)
		}
		if conf.Contracts.Policy() != conf.Contracts.Rewards {
			t.Errorf("rewards policy should default to the rewards address, got %s", conf.Contracts.Policy())
		}
		if conf.Indexer.Network != "preprod" || conf.DBType != "mongodb" {
			t.Errorf("indexer or db do not match the expected %+v", conf)
		}
	}
}

// TestConfigEnv checks that OS ENV variables override the file values.
func TestConfigEnv(t *testing.T) {
	env := map[string]string{
		"SAFESAVE_ENVFILE":      "does-not-exist.env",
		"PORT":                  "8080",
		"BLOCKFROST_NETWORK":    "preview",
		"LOAN_CONTRACT_ADDRESS": "addr_test1loan",
		"REWARDS_POLICY_ID":     "abcd",
		"SAFESAVE_CACHE_TTL":    "30",
		"SAFESAVE_DBTYPE":       "postgresql",
	}
	for k, v := range env {
		os.Setenv(k, v)
	}
	defer func() {
		for k := range env {
			os.Unsetenv(k)
		}
	}()

	conf, err := ExtractConfiguration(fileToTest)
	if err != nil {
		t.Fatalf("Error reading config:%e", err)
	}

	if conf.Port != "8080" || conf.Indexer.Network != "preview" || conf.Contracts.Loan != "addr_test1loan" {
		t.Errorf("env did not override the file: %+v", conf)
	}
	if conf.Contracts.Policy() != "abcd" || conf.CacheTTL != 30 || conf.DBType != "postgresql" {
		t.Errorf("env did not override the file: %+v", conf)
	}
	// untouched values keep the file ones
	if conf.Contracts.Savings == "" || conf.JWTSecret != "change-me" {
		t.Errorf("file values lost: %+v", conf)
	}
}

// TestDefault checks a configuration without file nor env.
func TestDefault(t *testing.T) {
	os.Setenv("SAFESAVE_ENVFILE", "does-not-exist.env")
	defer os.Unsetenv("SAFESAVE_ENVFILE")

	conf, err := ExtractConfiguration("")
	if err != nil {
		t.Fatalf("Error reading config:%e", err)
	}

	if conf.Port != PortDefault || conf.DBType != DBTypeDefault || len(conf.Contracts.Named()) != 0 {
		t.Errorf("unexpected defaults %+v", conf)
	}

	if err = conf.Validate(); err != ErrNoIndexer {
		t.Errorf("expected ErrNoIndexer, got %v", err)
	}
}
