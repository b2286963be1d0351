// Command staticlint bundles the analyzers the project is checked with into a
// single multichecker binary: a selection of passes from the Go toolchain,
// ineffassign, nilerr, the project's own noexit analyzer and the staticcheck
// analyzers listed in config.json next to the binary.
//
// Without config.json every SA (staticcheck) analyzer is enabled.
//
// Usage:
//
//	go build -o staticlint ./cmd/staticlint
//	./staticlint ./...
package main

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gordonklaus/ineffassign/pkg/ineffassign"
	"github.com/gostaticanalysis/nilerr"
	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/multichecker"
	"golang.org/x/tools/go/analysis/passes/copylock"
	"golang.org/x/tools/go/analysis/passes/errorsas"
	"golang.org/x/tools/go/analysis/passes/httpresponse"
	"golang.org/x/tools/go/analysis/passes/loopclosure"
	"golang.org/x/tools/go/analysis/passes/lostcancel"
	"golang.org/x/tools/go/analysis/passes/printf"
	"golang.org/x/tools/go/analysis/passes/structtag"
	"golang.org/x/tools/go/analysis/passes/unmarshal"
	"golang.org/x/tools/go/analysis/passes/unreachable"
	"honnef.co/go/tools/staticcheck"

	"github.com/patric-chuzhbe/todoapp/cmd/staticlint/noexit"
)

// Config is the name of the JSON file listing enabled staticcheck analyzers.
const Config = `config.json`

// ConfigData describes the configuration file, e.g.
// {"Staticcheck": ["SA1000", "SA4010"]}.
type ConfigData struct {
	Staticcheck []string
}

func loadConfig() (*ConfigData, error) {
	appfile, err := os.Executable()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(filepath.Dir(appfile), Config))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var cfg ConfigData
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func staticcheckAnalyzers(cfg *ConfigData) []*analysis.Analyzer {
	enabled := func(name string) bool {
		return strings.HasPrefix(name, "SA")
	}
	if cfg != nil {
		checks := make(map[string]bool, len(cfg.Staticcheck))
		for _, name := range cfg.Staticcheck {
			checks[name] = true
		}
		enabled = func(name string) bool {
			return checks[name]
		}
	}

	var result []*analysis.Analyzer
	for _, v := range staticcheck.Analyzers {
		if enabled(v.Analyzer.Name) {
			result = append(result, v.Analyzer)
		}
	}

	return result
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		panic(err)
	}

	myChecks := []*analysis.Analyzer{
		copylock.Analyzer,
		errorsas.Analyzer,
		httpresponse.Analyzer,
		loopclosure.Analyzer,
		lostcancel.Analyzer,
		printf.Analyzer,
		structtag.Analyzer,
		unmarshal.Analyzer,
		unreachable.Analyzer,

		ineffassign.Analyzer,
		nilerr.Analyzer,

		noexit.Analyzer,
	}
	myChecks = append(myChecks, staticcheckAnalyzers(cfg)...)

	multichecker.Main(myChecks...)
}
