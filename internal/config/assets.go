package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// TestAssets is the integration test description of a protocol
// (test_assets.yaml).
type TestAssets struct {
	SubstreamsYAMLPath    string            `yaml:"substreams_yaml_path"`
	AdapterContract       string            `yaml:"adapter_contract"`
	AdapterBuildSignature string            `yaml:"adapter_build_signature"`
	AdapterBuildArgs      string            `yaml:"adapter_build_args"`
	InitializedAccounts   []string          `yaml:"initialized_accounts"`
	SkipBalanceCheck      bool              `yaml:"skip_balance_check"`
	ProtocolTypeNames     []string          `yaml:"protocol_type_names"`
	Tests                 []IntegrationTest `yaml:"tests"`
}

// IntegrationTest is one block range with the components expected in it.
type IntegrationTest struct {
	Name                string              `yaml:"name"`
	StartBlock          uint64              `yaml:"start_block"`
	StopBlock           uint64              `yaml:"stop_block"`
	InitializedAccounts []string            `yaml:"initialized_accounts"`
	ExpectedComponents  []ExpectedComponent `yaml:"expected_components"`
}

type ExpectedComponent struct {
	ID               string            `yaml:"id"`
	Tokens           []string          `yaml:"tokens"`
	StaticAttributes map[string]string `yaml:"static_attributes"`
	CreationTx       string            `yaml:"creation_tx"`
	SkipSimulation   bool              `yaml:"skip_simulation"`
}

// LoadTestAssets reads and validates a test assets file. Unknown keys are rejected.
func LoadTestAssets(path string) (TestAssets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TestAssets{}, fmt.Errorf("read test assets: %w", err)
	}

	var assets TestAssets
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&assets); err != nil {
		return TestAssets{}, fmt.Errorf("parse test assets %s: %w", path, err)
	}
	if assets.SubstreamsYAMLPath == "" {
		assets.SubstreamsYAMLPath = "./substreams.yaml"
	}
	if assets.AdapterContract == "" {
		return TestAssets{}, fmt.Errorf("test assets %s: adapter_contract is required", path)
	}

	for i := range assets.Tests {
		test := &assets.Tests[i]
		if test.StopBlock < test.StartBlock {
			return TestAssets{}, fmt.Errorf("test %q: stop_block %d before start_block %d", test.Name, test.StopBlock, test.StartBlock)
		}
		for j := range test.ExpectedComponents {
			comp := &test.ExpectedComponents[j]
			comp.ID = strings.ToLower(comp.ID)
			for k, token := range comp.Tokens {
				comp.Tokens[k] = strings.ToLower(token)
			}
		}
	}
	return assets, nil
}

// FindTest returns the test with the given name. An empty name selects the first test.
func (a TestAssets) FindTest(name string) (IntegrationTest, error) {
	if len(a.Tests) == 0 {
		return IntegrationTest{}, fmt.Errorf("no tests defined")
	}
	if name == "" {
		return a.Tests[0], nil
	}
	for _, test := range a.Tests {
		if test.Name == name {
			return test, nil
		}
	}
	return IntegrationTest{}, fmt.Errorf("test %q not found", name)
}

// AccountsFor lists the accounts initialized for a test: the global ones first.
func (a TestAssets) AccountsFor(test IntegrationTest) []string {
	out := append([]string(nil), a.InitializedAccounts...)
	return append(out, test.InitializedAccounts...)
}
