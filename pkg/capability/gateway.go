// Package capability implements the side-effect boundary of the
// orchestrator. Skills never touch the network or any other effectful
// surface directly; every effect goes through a named capability whose
// input is schema-validated and whose execution is bounded by a timeout.
package capability

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"github.com/orchid-dev/orchid/internal/observability"
)

const defaultOutputCap = 16 * 1024

// Parameter declares one input field of a capability
type Parameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
}

// Handler is the function signature for capability execution
type Handler func(ctx context.Context, params map[string]interface{}) (string, error)

// Capability defines a named effectful operation
type Capability struct {
	Name         string                 `json:"name"`
	Description  string                 `json:"description"`
	Parameters   []Parameter            `json:"parameters"`
	OutputSchema map[string]interface{} `json:"output_schema,omitempty"`
	Handler      Handler                `json:"-"`
}

// Spec is the schema view of a capability handed to reasoning providers
// as a tool definition.
type Spec struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// Result represents the outcome of one capability call
type Result struct {
	Success   bool          `json:"success"`
	Output    string        `json:"output,omitempty"`
	Error     string        `json:"error,omitempty"`
	Truncated bool          `json:"truncated,omitempty"`
	Duration  time.Duration `json:"-"`
}

// CapabilityError reports a call rejected by the gateway before the
// handler ran: unknown name, disallowed by the active filter, or invalid
// parameters.
type CapabilityError struct {
	Capability string
	Reason     string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("capability %s: %s", e.Capability, e.Reason)
}

// Config configures the gateway
type Config struct {
	Logger      zerolog.Logger
	CallTimeout time.Duration
	// OutputCap limits handler output size in bytes. Zero means the
	// default cap.
	OutputCap int
}

// Gateway manages and executes capabilities
type Gateway struct {
	caps        map[string]*Capability
	schemas     map[string]*gojsonschema.Schema
	rawSchemas  map[string]map[string]interface{}
	logger      zerolog.Logger
	callTimeout time.Duration
	outputCap   int
	mu          sync.RWMutex
}

// New creates a capability gateway
func New(cfg Config) *Gateway {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.OutputCap <= 0 {
		cfg.OutputCap = defaultOutputCap
	}

	return &Gateway{
		caps:        make(map[string]*Capability),
		schemas:     make(map[string]*gojsonschema.Schema),
		rawSchemas:  make(map[string]map[string]interface{}),
		logger:      cfg.Logger,
		callTimeout: cfg.CallTimeout,
		outputCap:   cfg.OutputCap,
	}
}

// Register adds a capability to the gateway
func (g *Gateway) Register(def Capability) error {
	if err := validateDefinition(def); err != nil {
		return fmt.Errorf("invalid capability definition: %w", err)
	}

	rawSchema := buildInputSchema(def)
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(rawSchema))
	if err != nil {
		return fmt.Errorf("failed to compile input schema for %s: %w", def.Name, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.caps[def.Name]; exists {
		return fmt.Errorf("capability %s already registered", def.Name)
	}

	g.caps[def.Name] = &def
	g.schemas[def.Name] = schema
	g.rawSchemas[def.Name] = rawSchema

	g.logger.Info().Str("capability", def.Name).Msg("Capability registered")

	return nil
}

// Has reports whether a capability name is registered
func (g *Gateway) Has(name string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.caps[name]
	return ok
}

// Names returns all registered capability names, sorted
func (g *Gateway) Names() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	names := make([]string, 0, len(g.caps))
	for name := range g.caps {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Call validates parameters and executes a capability under the gateway
// timeout. Rejections and handler failures come back as failed Results,
// never as panics.
func (g *Gateway) Call(ctx context.Context, name string, params map[string]interface{}) Result {
	return g.call(ctx, name, params, nil)
}

// Filtered returns a restricted view of the gateway that only permits
// the given capability names. Calls outside the set fail with a
// CapabilityError result.
func (g *Gateway) Filtered(allowed []string) *Filtered {
	set := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		set[name] = true
	}
	return &Filtered{gateway: g, allowed: set}
}

func (g *Gateway) call(ctx context.Context, name string, params map[string]interface{}, allowed map[string]bool) Result {
	startTime := time.Now()

	if allowed != nil && !allowed[name] {
		g.logger.Warn().Str("capability", name).Msg("Capability call blocked by skill allow-list")
		err := &CapabilityError{Capability: name, Reason: "not in the active skill's allowed capabilities"}
		observability.RecordCapabilityCall(name, time.Since(startTime), false)
		return Result{Success: false, Error: err.Error(), Duration: time.Since(startTime)}
	}

	g.mu.RLock()
	def := g.caps[name]
	schema := g.schemas[name]
	g.mu.RUnlock()

	if def == nil {
		err := &CapabilityError{Capability: name, Reason: "not registered"}
		observability.RecordCapabilityCall(name, time.Since(startTime), false)
		return Result{Success: false, Error: err.Error(), Duration: time.Since(startTime)}
	}

	if params == nil {
		params = map[string]interface{}{}
	}

	if err := validateParams(schema, params); err != nil {
		g.logger.Error().Str("capability", name).Err(err).Msg("Parameter validation failed")
		capErr := &CapabilityError{Capability: name, Reason: err.Error()}
		observability.RecordCapabilityCall(name, time.Since(startTime), false)
		return Result{Success: false, Error: capErr.Error(), Duration: time.Since(startTime)}
	}

	g.logger.Debug().Str("capability", name).Msg("Executing capability")

	timeoutCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	resultChan := make(chan string, 1)
	errChan := make(chan error, 1)

	go func() {
		output, err := def.Handler(timeoutCtx, params)
		if err != nil {
			errChan <- err
		} else {
			resultChan <- output
		}
	}()

	select {
	case output := <-resultChan:
		duration := time.Since(startTime)
		output, truncated := g.truncateOutput(output)

		g.logger.Debug().
			Str("capability", name).
			Dur("duration", duration).
			Bool("truncated", truncated).
			Msg("Capability call completed")
		observability.RecordCapabilityCall(name, duration, true)

		return Result{Success: true, Output: output, Truncated: truncated, Duration: duration}

	case err := <-errChan:
		duration := time.Since(startTime)

		g.logger.Error().
			Str("capability", name).
			Dur("duration", duration).
			Err(err).
			Msg("Capability call failed")
		observability.RecordCapabilityCall(name, duration, false)

		return Result{Success: false, Error: err.Error(), Duration: duration}

	case <-timeoutCtx.Done():
		duration := time.Since(startTime)

		g.logger.Error().
			Str("capability", name).
			Dur("duration", duration).
			Msg("Capability call timeout")
		observability.RecordCapabilityCall(name, duration, false)

		return Result{
			Success:  false,
			Error:    fmt.Sprintf("capability call timeout after %v", g.callTimeout),
			Duration: duration,
		}
	}
}

// truncateOutput truncates output above the gateway size cap
func (g *Gateway) truncateOutput(output string) (string, bool) {
	if len(output) <= g.outputCap {
		return output, false
	}

	g.logger.Warn().
		Int("original", len(output)).
		Int("cap", g.outputCap).
		Msg("Capability output truncated")

	return output[:g.outputCap] + "\n... [output truncated]", true
}

// Filtered is the per-activation view of the gateway: only the skill's
// allowed capabilities are callable or visible through it.
type Filtered struct {
	gateway *Gateway
	allowed map[string]bool
}

// Has reports whether a capability is callable through this view
func (f *Filtered) Has(name string) bool {
	return f.allowed[name] && f.gateway.Has(name)
}

// Names returns the callable capability names, sorted
func (f *Filtered) Names() []string {
	names := make([]string, 0, len(f.allowed))
	for _, name := range f.gateway.Names() {
		if f.allowed[name] {
			names = append(names, name)
		}
	}
	return names
}

// Specs returns tool definitions for the callable capabilities
func (f *Filtered) Specs() []Spec {
	names := f.Names()

	f.gateway.mu.RLock()
	defer f.gateway.mu.RUnlock()

	specs := make([]Spec, 0, len(names))
	for _, name := range names {
		def := f.gateway.caps[name]
		specs = append(specs, Spec{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: f.gateway.rawSchemas[name],
		})
	}
	return specs
}

// Call executes a capability if it is in the allowed set
func (f *Filtered) Call(ctx context.Context, name string, params map[string]interface{}) Result {
	return f.gateway.call(ctx, name, params, f.allowed)
}

func validateDefinition(def Capability) error {
	if def.Name == "" {
		return fmt.Errorf("capability name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("capability description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("capability handler cannot be nil")
	}

	validTypes := map[string]bool{
		"string": true, "number": true, "boolean": true,
		"object": true, "array": true, "integer": true,
	}
	for _, param := range def.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %s for %s", param.Type, param.Name)
		}
		if param.Description == "" {
			return fmt.Errorf("parameter description cannot be empty for %s", param.Name)
		}
	}

	return nil
}

func buildInputSchema(def Capability) map[string]interface{} {
	properties := make(map[string]interface{})
	required := []string{}

	for _, param := range def.Parameters {
		paramSchema := map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Default != nil {
			paramSchema["default"] = param.Default
		}
		properties[param.Name] = paramSchema

		if param.Required {
			required = append(required, param.Name)
		}
	}

	schema := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}

	return schema
}

func validateParams(schema *gojsonschema.Schema, params map[string]interface{}) error {
	if schema == nil {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return err
	}

	if !result.Valid() {
		errs := []string{}
		for _, verr := range result.Errors() {
			errs = append(errs, verr.String())
		}
		return fmt.Errorf("validation errors: %v", errs)
	}

	return nil
}
