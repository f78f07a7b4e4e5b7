package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/edvin/backhaul/internal/core"
	"github.com/edvin/backhaul/internal/model"
	"github.com/edvin/backhaul/internal/platform"
	"github.com/edvin/backhaul/internal/sshkey"
)

type seedConfig struct {
	Agents []seedAgent `yaml:"agents"`
}

type seedAgent struct {
	Name    string     `yaml:"name"`
	Host    string     `yaml:"host"`
	Port    int        `yaml:"port"`
	SSHUser string     `yaml:"ssh_user"`
	Plans   []seedPlan `yaml:"plans"`
}

type seedPlan struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Schedule    string `yaml:"schedule"`
	Source      string `yaml:"source"`
	Destination string `yaml:"destination"`
	Active      *bool  `yaml:"active"`
}

// seed bootstraps agents and their plans from a YAML file. Existing agents
// (matched by name) are left alone, so seeding is safe to re-run.
func seed(ctx context.Context, services *core.Services, path string, logger zerolog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}

	var cfg seedConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}

	existing := map[string]bool{}
	cursor := ""
	for {
		agents, hasMore, err := services.Agent.List(ctx, 200, cursor)
		if err != nil {
			return fmt.Errorf("list agents: %w", err)
		}
		for _, a := range agents {
			existing[a.Name] = true
		}
		if !hasMore || len(agents) == 0 {
			break
		}
		cursor = agents[len(agents)-1].ID
	}

	for _, sa := range cfg.Agents {
		if existing[sa.Name] {
			logger.Info().Str("agent", sa.Name).Msg("seed: agent exists, skipping")
			continue
		}

		keys, err := sshkey.Generate(sa.Name)
		if err != nil {
			return fmt.Errorf("generate key for agent %q: %w", sa.Name, err)
		}

		port := sa.Port
		if port == 0 {
			port = 22
		}

		now := time.Now()
		agent := &model.Agent{
			ID:          platform.NewID(),
			Name:        sa.Name,
			Host:        sa.Host,
			Port:        port,
			SSHUser:     sa.SSHUser,
			PublicKey:   keys.AuthorizedKey,
			PrivateKey:  keys.PrivateKeyPEM,
			Fingerprint: keys.Fingerprint,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := services.Agent.Create(ctx, agent); err != nil {
			return fmt.Errorf("create agent %q: %w", sa.Name, err)
		}
		logger.Info().Str("agent", sa.Name).Str("fingerprint", keys.Fingerprint).Msg("seed: agent created")

		for _, sp := range sa.Plans {
			active := true
			if sp.Active != nil {
				active = *sp.Active
			}
			plan := &model.BackupPlan{
				ID:          platform.NewID(),
				AgentID:     &agent.ID,
				Name:        sp.Name,
				Description: sp.Description,
				Schedule:    sp.Schedule,
				Source:      sp.Source,
				Destination: sp.Destination,
				Active:      active,
				Host:        agent.Host,
				Port:        agent.Port,
				SSHUser:     agent.SSHUser,
				PrivateKey:  agent.PrivateKey,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := services.Plan.Create(ctx, plan); err != nil {
				return fmt.Errorf("create plan %q: %w", sp.Name, err)
			}
			logger.Info().Str("plan", sp.Name).Str("agent", sa.Name).Msg("seed: plan created")
		}
	}

	return nil
}
