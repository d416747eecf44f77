package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/nancliu/pm-agent/internal/accounts"
	"github.com/nancliu/pm-agent/internal/lifecycle"
	"github.com/nancliu/pm-agent/internal/model"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var seedCmd = &cobra.Command{
	Use:   "seed <file.yaml>",
	Short: "Load users and tasks from a YAML file",
	Long: `Load users and tasks from a YAML file. Users that already exist are
reused. Each task is created by created_by and then walked through the
statuses listed under transitions, so the history shows every step.

  users:
    - {username: admin, email: admin@example.com, password: secret1, role: admin}
  tasks:
    - title: Draft roadmap
      due_date: 2030-01-31
      priority: high
      created_by: admin
      transitions: [in_progress, completed]`,
	Args: cobra.ExactArgs(1),
	RunE: runSeed,
}

type seedFile struct {
	Users []accounts.Registration `yaml:"users"`
	Tasks []seedTask              `yaml:"tasks"`
}

type seedTask struct {
	Title       string    `yaml:"title"`
	Description string    `yaml:"description"`
	DueDate     time.Time `yaml:"due_date"`
	Priority    string    `yaml:"priority"`
	CreatedBy   string    `yaml:"created_by"`
	Assignee    string    `yaml:"assignee"`
	Transitions []string  `yaml:"transitions"`
}

type seedResult struct {
	UsersCreated int
	UsersReused  int
	Tasks        int
}

func runSeed(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	file, err := parseSeed(data)
	if err != nil {
		return err
	}

	a, err := openApp(os.Stdout, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := seed(cmd.Context(), a.users, a.tasks, file)
	if err != nil {
		return err
	}
	printSeedResult(cmd.OutOrStdout(), result)
	return nil
}

func parseSeed(data []byte) (seedFile, error) {
	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return seedFile{}, fmt.Errorf("parse seed file: %w", err)
	}
	return file, nil
}

func seed(ctx context.Context, users *accounts.Service, tasks *lifecycle.Service, file seedFile) (seedResult, error) {
	var result seedResult
	byName := make(map[string]model.User, len(file.Users))

	for _, reg := range file.Users {
		user, err := users.Bootstrap(ctx, reg)
		switch {
		case errors.Is(err, model.ErrConflict):
			user, err = users.Lookup(ctx, reg.Username)
			if err != nil {
				return result, fmt.Errorf("seed user %s: %w", reg.Username, err)
			}
			result.UsersReused++
		case err != nil:
			return result, fmt.Errorf("seed user %s: %w", reg.Username, err)
		default:
			result.UsersCreated++
		}
		byName[user.Username] = user
	}

	resolve := func(name string) (model.User, error) {
		name = strings.TrimSpace(name)
		if user, ok := byName[name]; ok {
			return user, nil
		}
		user, err := users.Lookup(ctx, name)
		if err != nil {
			return model.User{}, fmt.Errorf("user %q: %w", name, err)
		}
		byName[name] = user
		return user, nil
	}

	for _, st := range file.Tasks {
		creator, err := resolve(st.CreatedBy)
		if err != nil {
			return result, fmt.Errorf("seed task %q: %w", st.Title, err)
		}

		input := model.TaskInput{Title: st.Title, DueDate: st.DueDate, Priority: st.Priority}
		if st.Description != "" {
			description := st.Description
			input.Description = &description
		}
		if st.Assignee != "" {
			assignee, err := resolve(st.Assignee)
			if err != nil {
				return result, fmt.Errorf("seed task %q: %w", st.Title, err)
			}
			input.AssigneeID = &assignee.ID
		}

		task, err := tasks.Create(ctx, input, creator.Principal())
		if err != nil {
			return result, fmt.Errorf("seed task %q: %w", st.Title, err)
		}
		for _, status := range st.Transitions {
			if task, err = tasks.ChangeStatus(ctx, task.ID, status, creator.Principal()); err != nil {
				return result, fmt.Errorf("seed task %q: %w", st.Title, err)
			}
		}
		result.Tasks++
	}
	return result, nil
}

func printSeedResult(w io.Writer, result seedResult) {
	fmt.Fprintf(w, "users: %d created, %d existing\n", result.UsersCreated, result.UsersReused)
	fmt.Fprintf(w, "tasks: %d created\n", result.Tasks)
}
