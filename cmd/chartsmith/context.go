package main

import (
	"errors"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"chartsmith/internal/config"
)

const ownerEnv = "CHARTSMITH_OWNER"

type commandContext struct {
	addressFlag *string
	configFlag  *string
	ownerFlag   *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(addressFlag, configFlag, ownerFlag *string) *commandContext {
	return &commandContext{
		addressFlag: addressFlag,
		configFlag:  configFlag,
		ownerFlag:   ownerFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// address resolves the daemon API address from the flag or the config file.
func (c *commandContext) address() string {
	if c.addressFlag != nil {
		if addr := strings.TrimSpace(*c.addressFlag); addr != "" {
			return addr
		}
	}
	cfg, err := c.ensureConfig()
	if err == nil && cfg != nil {
		if addr := strings.TrimSpace(cfg.Paths.APIBind); addr != "" {
			return addr
		}
	}
	return "127.0.0.1:7717"
}

func (c *commandContext) owner() (string, error) {
	if c.ownerFlag != nil {
		if owner := strings.TrimSpace(*c.ownerFlag); owner != "" {
			return owner, nil
		}
	}
	if owner := strings.TrimSpace(os.Getenv(ownerEnv)); owner != "" {
		return owner, nil
	}
	return "", errors.New("owner id is required; pass --owner or set " + ownerEnv)
}

func (c *commandContext) client() *apiClient {
	return newAPIClient(c.address())
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
