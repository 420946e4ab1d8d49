package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"agentchain/backend/internal/config"
	"agentchain/backend/internal/logging"
	"agentchain/backend/internal/repository"
	"agentchain/backend/pkg/models"
)

// seedFile is the on-disk layout of an agents file.
type seedFile struct {
	Agents []seedAgent `yaml:"agents"`
}

type seedAgent struct {
	ID             string   `yaml:"id"`
	Owner          string   `yaml:"owner"`
	Name           string   `yaml:"name"`
	Model          string   `yaml:"model"`
	Status         string   `yaml:"status"`
	Plugins        []string `yaml:"plugins"`
	KnowledgeBases []string `yaml:"knowledge_bases"`
}

func main() {
	var configPath, agentsPath string

	cmd := &cobra.Command{
		Use:          "seed",
		Short:        "Load agents from a YAML file into the agent registry",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger := logging.NewLogger(cfg.Log)
			defer logger.Sync()

			f, err := os.Open(agentsPath)
			if err != nil {
				return err
			}
			defer f.Close()

			agents, err := loadAgents(f, time.Now().UTC())
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", agentsPath, err)
			}
			return seed(cmd.Context(), cfg, logger, agents)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	cmd.Flags().StringVarP(&agentsPath, "file", "f", "agents.yaml", "Path to the agents YAML file")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func seed(ctx context.Context, cfg *config.Config, logger *logging.Logger, agents []*models.Agent) error {
	repo, err := repository.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	if cfg.DB.AutoMigrate {
		m, err := repository.NewMigrator(repo)
		if err != nil {
			return err
		}
		defer m.Close()
		if err := m.Up(); err != nil {
			return err
		}
	}

	for _, agent := range agents {
		if err := repo.UpsertAgent(ctx, agent); err != nil {
			return fmt.Errorf("failed to seed agent %s: %w", agent.ID, err)
		}
		logger.Info("Seeded agent", "id", agent.ID, "name", agent.Name, "status", agent.Status)
	}
	logger.Info("Seeding complete", "agents", len(agents))
	return nil
}

// loadAgents parses an agents file. Reference lists are stored as JSON
// string arrays and a missing status defaults to draft.
func loadAgents(r io.Reader, now time.Time) ([]*models.Agent, error) {
	var file seedFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	agents := make([]*models.Agent, 0, len(file.Agents))
	seen := make(map[string]bool, len(file.Agents))
	for i, a := range file.Agents {
		id := strings.TrimSpace(a.ID)
		if id == "" {
			return nil, fmt.Errorf("agent #%d: id is required", i+1)
		}
		if seen[id] {
			return nil, fmt.Errorf("agent %s: duplicate id", id)
		}
		seen[id] = true
		if strings.TrimSpace(a.Model) == "" {
			return nil, fmt.Errorf("agent %s: model is required", id)
		}

		status := models.AgentStatus(strings.ToLower(strings.TrimSpace(a.Status)))
		switch status {
		case "":
			status = models.AgentStatusDraft
		case models.AgentStatusDraft, models.AgentStatusPublished:
		default:
			return nil, fmt.Errorf("agent %s: unknown status %q", id, a.Status)
		}

		plugins, err := refsJSON(a.Plugins)
		if err != nil {
			return nil, err
		}
		kbs, err := refsJSON(a.KnowledgeBases)
		if err != nil {
			return nil, err
		}

		agents = append(agents, &models.Agent{
			ID:             id,
			OwnerID:        strings.TrimSpace(a.Owner),
			Name:           strings.TrimSpace(a.Name),
			Model:          strings.TrimSpace(a.Model),
			Status:         status,
			Plugins:        plugins,
			KnowledgeBases: kbs,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}
	return agents, nil
}

func refsJSON(refs []string) (string, error) {
	if refs == nil {
		refs = []string{}
	}
	b, err := json.Marshal(refs)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
