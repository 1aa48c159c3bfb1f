package config

import (
	"fmt"
	"time"

	"groupcast/internal/directory"
	"groupcast/internal/groupstate"
	"groupcast/internal/planner"
	logx "groupcast/pkg/logx"
)

// Config is the whole daemon configuration. All durations are Go duration
// strings (e.g. "30m", "48h").
type Config struct {
	Logging   logx.Config     `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Directory StorageConfig   `json:"directory"`
	RampUp    *RampUpConfig   `json:"ramp_up,omitempty"`
	Limits    LimitsConfig    `json:"limits"`
	Schedule  ScheduleConfig  `json:"schedule"`
	Runner    RunnerConfig    `json:"runner"`
	Telegram  *TelegramConfig `json:"telegram,omitempty"`
}

type StorageConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// RampUpConfig describes the onboarding ladder for newly assigned groups.
// When the whole section is omitted, the built-in default ladder applies.
type RampUpConfig struct {
	InitialDelay string            `json:"initial_delay,omitempty"`
	Phases       []RampPhaseConfig `json:"phases,omitempty"`
}

type RampPhaseConfig struct {
	Name        string `json:"name"`
	Window      string `json:"window"`
	MaxPosts    int    `json:"max_posts"`
	MinInterval string `json:"min_interval,omitempty"`
}

type LimitsConfig struct {
	GroupCooldown    string `json:"group_cooldown,omitempty"`     // default "72h"
	MaxPostsPerDay   int    `json:"max_posts_per_day,omitempty"`  // default 1
	DedupeWindowDays int    `json:"dedupe_window_days,omitempty"` // default 7
}

type ScheduleConfig struct {
	StartHour              int     `json:"start_hour"`
	EndHour                int     `json:"end_hour"`
	PostsPerDay            int     `json:"posts_per_day"`
	MinInterval            string  `json:"min_interval,omitempty"` // default "30m"
	IntervalVariationPct   float64 `json:"interval_variation_pct,omitempty"`
	MaxGroupsPerAccount    int     `json:"max_groups_per_account,omitempty"`
	MediaAttachProbability float64 `json:"media_attach_probability,omitempty"`
}

type RunnerConfig struct {
	Enabled bool `json:"enabled"`
	// Cron triggers a scheduling run; default "0 8 * * *".
	Cron     string `json:"cron,omitempty"`
	Timezone string `json:"timezone,omitempty"` // IANA TZ, e.g. "Europe/Berlin"
	// AutoAssign onboards every (active account, directory group) pair at
	// startup, so freshly imported groups enter ramp-up without manual ops.
	AutoAssign bool `json:"auto_assign,omitempty"`
	// DryRun plans and records nothing, delivers nothing.
	DryRun bool `json:"dry_run,omitempty"`
}

type TelegramConfig struct {
	Token      string `json:"token"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// ---- resolution into domain values ----

func (c StorageConfig) StoreConfig() (groupstate.StoreConfig, error) {
	busy, err := parseDurationDefault("storage.busy_timeout", c.BusyTimeout, 5*time.Second)
	if err != nil {
		return groupstate.StoreConfig{}, err
	}
	return groupstate.StoreConfig{Driver: c.Driver, Path: c.Path, BusyTimeout: busy}, nil
}

func (c StorageConfig) DirectoryConfig() (directory.Config, error) {
	busy, err := parseDurationDefault("directory.busy_timeout", c.BusyTimeout, 5*time.Second)
	if err != nil {
		return directory.Config{}, err
	}
	return directory.Config{Driver: c.Driver, Path: c.Path, BusyTimeout: busy}, nil
}

// Policy resolves the ramp-up ladder and steady-state limits into the value
// passed explicitly to every coordinator call.
func (c *Config) Policy() (groupstate.Policy, error) {
	ramp := groupstate.DefaultRampUp()
	if c.RampUp != nil {
		delay, err := parseDuration("ramp_up.initial_delay", c.RampUp.InitialDelay)
		if err != nil {
			return groupstate.Policy{}, err
		}
		ramp = groupstate.RampUpConfig{InitialDelay: delay}
		for i, p := range c.RampUp.Phases {
			window, err := parseDuration(fmt.Sprintf("ramp_up.phases[%d].window", i), p.Window)
			if err != nil {
				return groupstate.Policy{}, err
			}
			if window <= 0 {
				return groupstate.Policy{}, fmt.Errorf("ramp_up.phases[%d].window must be positive", i)
			}
			minIv, err := parseDuration(fmt.Sprintf("ramp_up.phases[%d].min_interval", i), p.MinInterval)
			if err != nil {
				return groupstate.Policy{}, err
			}
			ramp.Phases = append(ramp.Phases, groupstate.RampPhase{
				Name:        p.Name,
				Window:      window,
				MaxPosts:    p.MaxPosts,
				MinInterval: minIv,
			})
		}
	}

	cooldown, err := parseDurationDefault("limits.group_cooldown", c.Limits.GroupCooldown, 72*time.Hour)
	if err != nil {
		return groupstate.Policy{}, err
	}
	maxPerDay := c.Limits.MaxPostsPerDay
	if maxPerDay <= 0 {
		maxPerDay = 1
	}
	windowDays := c.Limits.DedupeWindowDays
	if windowDays <= 0 {
		windowDays = 7
	}

	return groupstate.Policy{
		RampUp: ramp,
		Limits: groupstate.Limits{
			GroupCooldown:  cooldown,
			MaxPostsPerDay: maxPerDay,
			DedupeWindow:   time.Duration(windowDays) * 24 * time.Hour,
		},
	}, nil
}

// PlannerConfig resolves the schedule-generation knobs.
func (c *Config) PlannerConfig() (planner.Config, error) {
	minIv, err := parseDurationDefault("schedule.min_interval", c.Schedule.MinInterval, 30*time.Minute)
	if err != nil {
		return planner.Config{}, err
	}
	return planner.Config{
		StartHour:              c.Schedule.StartHour,
		EndHour:                c.Schedule.EndHour,
		PostsPerDay:            c.Schedule.PostsPerDay,
		MinInterval:            minIv,
		IntervalVariationPct:   c.Schedule.IntervalVariationPct,
		MaxGroupsPerAccount:    c.Schedule.MaxGroupsPerAccount,
		MediaAttachProbability: c.Schedule.MediaAttachProbability,
	}, nil
}

// Validate rejects configs that could not run. It resolves every derived
// value once so duration typos surface at load time, not mid-run.
func (c *Config) Validate() error {
	if _, err := c.Policy(); err != nil {
		return err
	}
	if _, err := c.PlannerConfig(); err != nil {
		return err
	}
	if _, err := c.Storage.StoreConfig(); err != nil {
		return err
	}
	if _, err := c.Directory.DirectoryConfig(); err != nil {
		return err
	}
	if c.Schedule.StartHour < 0 || c.Schedule.StartHour > 23 {
		return fmt.Errorf("schedule.start_hour out of range: %d", c.Schedule.StartHour)
	}
	if c.Schedule.EndHour < 1 || c.Schedule.EndHour > 24 {
		return fmt.Errorf("schedule.end_hour out of range: %d", c.Schedule.EndHour)
	}
	if c.Runner.Enabled && !c.Runner.DryRun {
		if c.Telegram == nil || c.Telegram.Token == "" {
			return fmt.Errorf("telegram.token is required unless runner.dry_run is set")
		}
	}
	if c.Runner.Timezone != "" {
		if _, err := time.LoadLocation(c.Runner.Timezone); err != nil {
			return fmt.Errorf("runner.timezone: %w", err)
		}
	}
	return nil
}
