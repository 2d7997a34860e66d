// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalidConfig is wrapped by every error returned from Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Agent footprint shapes.
const (
	ShapeEllipse = "ellipse"
	ShapeBox     = "box"
	ShapeSprite  = "sprite"
)

// Config holds all simulation configuration parameters.
type Config struct {
	Screen     ScreenConfig     `yaml:"screen"`
	World      WorldConfig      `yaml:"world"`
	Physics    PhysicsConfig    `yaml:"physics"`
	Agent      AgentConfig      `yaml:"agent"`
	Obstacle   ObstacleConfig   `yaml:"obstacle"`
	Fitness    FitnessConfig    `yaml:"fitness"`
	Population PopulationConfig `yaml:"population"`
	Simulation SimulationConfig `yaml:"simulation"`
	Neural     NeuralConfig     `yaml:"neural"`
	Evolution  EvolutionConfig  `yaml:"evolution"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// ScreenConfig holds display settings for the viewer.
type ScreenConfig struct {
	Width     int `yaml:"width"`
	Height    int `yaml:"height"`
	TargetFPS int `yaml:"target_fps"`
}

// WorldConfig holds world dimensions in world units.
type WorldConfig struct {
	Width  int     `yaml:"width"`   // 0 = use screen width
	Height int     `yaml:"height"`  // 0 = use screen height
	FloorY float64 `yaml:"floor_y"` // ground line; touching it is fatal
}

// PhysicsConfig holds the jump parabola constants.
type PhysicsConfig struct {
	JumpVelocity    float64 `yaml:"jump_velocity"`    // velocity set by a jump (negative = up)
	Gravity         float64 `yaml:"gravity"`          // coefficient of t² in the displacement
	MaxDisplacement float64 `yaml:"max_displacement"` // per-tick displacement cap
	UpwardBonus     float64 `yaml:"upward_bonus"`     // extra lift applied to negative displacement
}

// AgentConfig holds agent geometry and cosmetic rotation.
type AgentConfig struct {
	StartX           float64 `yaml:"start_x"`
	StartY           float64 `yaml:"start_y"`
	Width            int     `yaml:"width"`
	Height           int     `yaml:"height"`
	Shape            string  `yaml:"shape"`  // ellipse, box or sprite
	Sprite           string  `yaml:"sprite"` // PNG path when shape = sprite
	MaxRotation      float64 `yaml:"max_rotation"`
	RotationVelocity float64 `yaml:"rotation_velocity"`
}

// ObstacleConfig holds obstacle geometry and generation parameters.
type ObstacleConfig struct {
	Width         int     `yaml:"width"`
	SegmentHeight int     `yaml:"segment_height"` // height of each of the two segments
	Gap           float64 `yaml:"gap"`
	MinGapTop     int     `yaml:"min_gap_top"` // inclusive
	MaxGapTop     int     `yaml:"max_gap_top"` // exclusive
	Velocity      float64 `yaml:"velocity"`
	FirstX        float64 `yaml:"first_x"`      // x of the obstacle present at generation start
	SpawnOffset   float64 `yaml:"spawn_offset"` // distance ahead of the rightmost obstacle
}

// FitnessConfig holds reward and penalty magnitudes.
type FitnessConfig struct {
	SurvivalReward   float64 `yaml:"survival_reward"`   // per tick alive
	CollisionPenalty float64 `yaml:"collision_penalty"` // once, on obstacle collision
	CrossingBonus    float64 `yaml:"crossing_bonus"`    // every survivor, per crossing event
}

// PopulationConfig holds population parameters.
type PopulationConfig struct {
	Size          int     `yaml:"size"`
	JumpThreshold float64 `yaml:"jump_threshold"` // decision values above this jump
}

// SimulationConfig holds generation termination caps and scheduling.
type SimulationConfig struct {
	MaxTicks          int `yaml:"max_ticks"`          // 0 = unlimited
	MaxScore          int `yaml:"max_score"`          // 0 = unlimited, which never ends a perfect generation
	ParallelThreshold int `yaml:"parallel_threshold"` // min live agents for parallel policy evaluation
}

// NeuralConfig holds policy network parameters.
type NeuralConfig struct {
	Hidden int `yaml:"hidden"`
}

// EvolutionConfig holds parameters for the bundled optimizer.
type EvolutionConfig struct {
	Generations  int     `yaml:"generations"`
	Elite        int     `yaml:"elite"`
	Tournament   int     `yaml:"tournament"`
	Crossover    float64 `yaml:"crossover"`
	MutationRate float64 `yaml:"mutation_rate"`
	Sigma        float64 `yaml:"sigma"`
	BigRate      float64 `yaml:"big_rate"`
	BigSigma     float64 `yaml:"big_sigma"`
	HallOfFame   int     `yaml:"hall_of_fame"`
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	LogEvery int `yaml:"log_every"` // log stats every N generations
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	WorldW float64 // effective world width
	WorldH float64 // effective world height
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Default returns a fresh copy of the embedded defaults.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults are invalid: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.computeDerived()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	worldW := c.World.Width
	if worldW == 0 {
		worldW = c.Screen.Width
	}
	worldH := c.World.Height
	if worldH == 0 {
		worldH = c.Screen.Height
	}
	c.Derived.WorldW = float64(worldW)
	c.Derived.WorldH = float64(worldH)

	if c.Agent.Shape == "" {
		c.Agent.Shape = ShapeEllipse
	}
}

// Validate reports every invalid parameter. The simulation must not start
// while this returns an error.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.Derived.WorldW <= 0 || c.Derived.WorldH <= 0 {
		bad("world size must be positive, got %vx%v", c.Derived.WorldW, c.Derived.WorldH)
	}
	if c.World.FloorY <= 0 || (c.Derived.WorldH > 0 && c.World.FloorY > c.Derived.WorldH) {
		bad("floor_y %v outside world height %v", c.World.FloorY, c.Derived.WorldH)
	}
	if c.Physics.MaxDisplacement <= 0 {
		bad("max_displacement must be positive, got %v", c.Physics.MaxDisplacement)
	}
	if c.Agent.Width <= 0 || c.Agent.Height <= 0 {
		bad("agent size must be positive, got %dx%d", c.Agent.Width, c.Agent.Height)
	}
	switch c.Agent.Shape {
	case ShapeEllipse, ShapeBox:
	case ShapeSprite:
		if c.Agent.Sprite == "" {
			bad("agent.sprite is required when shape is %q", ShapeSprite)
		}
	default:
		bad("unknown agent shape %q", c.Agent.Shape)
	}
	if c.Obstacle.Width <= 0 || c.Obstacle.SegmentHeight <= 0 {
		bad("obstacle size must be positive, got %dx%d", c.Obstacle.Width, c.Obstacle.SegmentHeight)
	}
	if c.Obstacle.Gap <= 0 {
		bad("gap must be positive, got %v", c.Obstacle.Gap)
	}
	if c.Obstacle.MinGapTop < 0 || c.Obstacle.MaxGapTop <= c.Obstacle.MinGapTop {
		bad("gap top range [%d, %d) is empty", c.Obstacle.MinGapTop, c.Obstacle.MaxGapTop)
	}
	if c.Obstacle.Velocity <= 0 {
		bad("obstacle velocity must be positive, got %v", c.Obstacle.Velocity)
	}
	if c.Obstacle.SpawnOffset <= 0 {
		bad("spawn_offset must be positive, got %v", c.Obstacle.SpawnOffset)
	}
	if c.Population.Size < 1 {
		bad("population size must be at least 1, got %d", c.Population.Size)
	}
	if c.Simulation.MaxTicks < 0 || c.Simulation.MaxScore < 0 {
		bad("simulation caps must not be negative")
	}
	if c.Neural.Hidden < 1 {
		bad("neural.hidden must be at least 1, got %d", c.Neural.Hidden)
	}
	if c.Evolution.Elite < 0 || c.Evolution.Elite > c.Population.Size {
		bad("evolution.elite %d outside [0, %d]", c.Evolution.Elite, c.Population.Size)
	}
	if c.Evolution.Tournament < 1 {
		bad("evolution.tournament must be at least 1, got %d", c.Evolution.Tournament)
	}

	return errors.Join(errs...)
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}
