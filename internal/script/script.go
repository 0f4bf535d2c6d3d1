// Package script synthesizes the self-contained Python artifacts that drive
// the external crawl engine.
//
// Request values never appear in generated source. Render returns the script
// text (rendered only from trusted configuration) and, separately, the request
// serialized as JSON. The pipeline writes both into the arena and passes their
// paths to the interpreter as arguments; the script parses the input file at
// runtime and always writes a result file, success or failure.
package script

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"regexp"
	"text/template"

	"github.com/JakeFAU/crawlrunner/internal/crawler"
)

// generatorTag is stamped into every generated script.
const generatorTag = "script/v1"

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

	validModule = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)
)

// Script is a rendered artifact: executable source plus the JSON input it reads.
// Input is empty for scripts that take no parameters.
type Script struct {
	Source []byte
	Input  []byte
}

// Renderer produces crawl and probe artifacts. The pipeline depends on this
// interface so tests can substitute shell artifacts.
type Renderer interface {
	Render(params crawler.CrawlParameters) (Script, error)
	RenderProbe() (Script, error)
}

// Config controls the generated source.
type Config struct {
	// EngineModule is the importable Python package of the crawl engine.
	EngineModule string `mapstructure:"engine_module"`
}

// Synthesizer renders the embedded Python templates.
type Synthesizer struct {
	engineModule string
}

// New validates cfg and returns a Synthesizer.
func New(cfg Config) (*Synthesizer, error) {
	module := cfg.EngineModule
	if module == "" {
		module = "crawl4ai"
	}
	if !validModule.MatchString(module) {
		return nil, fmt.Errorf("invalid engine module %q", module)
	}
	return &Synthesizer{engineModule: module}, nil
}

type templateData struct {
	Generator    string
	EngineModule string
	ScriptName   string
}

// input is the wire form read by the crawl script. Keys are snake_case to
// match the Python side.
type input struct {
	URL                   string `json:"url"`
	MaxPages              int    `json:"max_pages"`
	Depth                 int    `json:"depth"`
	Strategy              string `json:"strategy"`
	Query                 string `json:"query"`
	CaptureNetworkTraffic bool   `json:"capture_network_traffic"`
	CaptureConsole        bool   `json:"capture_console"`
	CaptureHTML           bool   `json:"capture_html"`
	CaptureScreenshots    bool   `json:"capture_screenshots"`
	WaitTimeMs            int    `json:"wait_time_ms"`
}

// Render builds the crawl script and its JSON input for params.
func (s *Synthesizer) Render(params crawler.CrawlParameters) (Script, error) {
	if err := params.Validate(); err != nil {
		return Script{}, fmt.Errorf("render crawl script: %w", err)
	}
	source, err := s.execute("crawl.py.tmpl")
	if err != nil {
		return Script{}, err
	}
	in, err := json.Marshal(input{
		URL:                   params.URL,
		MaxPages:              params.MaxPages,
		Depth:                 params.Depth,
		Strategy:              string(params.Strategy),
		Query:                 params.Query,
		CaptureNetworkTraffic: params.CaptureNetworkTraffic,
		CaptureConsole:        params.CaptureConsole,
		CaptureHTML:           params.CaptureHTML,
		CaptureScreenshots:    params.CaptureScreenshots,
		WaitTimeMs:            params.WaitTime,
	})
	if err != nil {
		return Script{}, fmt.Errorf("marshal crawl input: %w", err)
	}
	return Script{Source: source, Input: in}, nil
}

// RenderProbe builds the health probe script.
func (s *Synthesizer) RenderProbe() (Script, error) {
	source, err := s.execute("probe.py.tmpl")
	if err != nil {
		return Script{}, err
	}
	return Script{Source: source}, nil
}

func (s *Synthesizer) execute(name string) ([]byte, error) {
	var buf bytes.Buffer
	data := templateData{
		Generator:    generatorTag,
		EngineModule: s.engineModule,
		ScriptName:   name[:len(name)-len(".tmpl")],
	}
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("execute template %s: %w", name, err)
	}
	return buf.Bytes(), nil
}
