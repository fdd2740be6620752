// Package deploy builds the Safe-Save validators with aiken and derives their addresses with cardano-cli.
//
// The deployment writes into Config.Dir, for every validator, the compiled code (<name>.plutus) and the text envelope
// cardano-cli reads (<name>.script), plus the address listings the backend is configured from:
// contract_addresses.txt, contract_addresses.env, deployment_info.json and INTEGRATION_GUIDE.md. Every file is
// replaced atomically so an interrupted run never leaves a truncated artifact behind.
package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio"
	"github.com/google/shlex"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// Validators deployed, in order.
var Validators = []string{"savings", "loan", "investment", "rewards", "governance"} //nolint:gochecknoglobals

// Artifact names.
const (
	PlutusFile    = "plutus.json"
	AddressesFile = "contract_addresses.txt"
	EnvFile       = "contract_addresses.env"
	InfoFile      = "deployment_info.json"
	GuideFile     = "INTEGRATION_GUIDE.md"
)

// Errors returned
var (
	ErrMissingTool      = errors.New("required tool is not installed")
	ErrValidatorMissing = errors.New("validator not found in plutus.json")
	ErrEmptyOutput      = errors.New("command returned no output")
)

// Runner runs an external command and returns its standard output.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) (string, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes name with args in dir. Failures carry the command standard error.
func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) (string, error) {
	var stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return "", errors.Wrapf(err, "%s %s: %s", name, strings.Join(args, " "), strings.TrimSpace(stderr.String()))
	}

	return string(out), nil
}

// Config of a deployment. Aiken and CardanoCLI are command lines, ie. "docker run --rm -v .:/src aiken".
type Config struct {
	Network    string // mainnet, preprod or preview
	Magic      string // testnet magic, derived from Network when empty
	ProjectDir string // aiken project holding plutus.json
	Dir        string // deployment directory, relative to ProjectDir unless absolute
	Aiken      string
	CardanoCLI string
	SkipBuild  bool
}

// Contract is the deployed address of a validator.
type Contract struct {
	Address    string `json:"address"`
	ScriptHash string `json:"scriptHash"`
	ScriptFile string `json:"scriptFile"`
}

// Info is written to deployment_info.json.
type Info struct {
	Network        string              `json:"network"`
	NetworkMagic   string              `json:"networkMagic,omitempty"`
	DeploymentDate string              `json:"deploymentDate"`
	Contracts      map[string]Contract `json:"contracts"`
}

// script is the text envelope cardano-cli reads.
type script struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	CborHex     string `json:"cborHex"`
}

// Deployer runs the deployment steps.
type Deployer struct {
	conf Config
	run  Runner
	now  func() time.Time
}

// New returns a deployer of conf. Missing settings take the defaults of a preprod deployment into ./deployment.
// ProjectDir and Dir are made absolute.
func New(conf Config, r Runner) *Deployer {
	if conf.Network == "" {
		conf.Network = "preprod"
	}

	if conf.Magic == "" {
		switch conf.Network {
		case "preprod":
			conf.Magic = "1"
		case "preview":
			conf.Magic = "2"
		}
	}

	if conf.ProjectDir == "" {
		conf.ProjectDir = "."
	}

	// the tools run in ProjectDir and get paths joined to it
	if abs, err := filepath.Abs(conf.ProjectDir); err == nil {
		conf.ProjectDir = abs
	}

	if conf.Dir == "" {
		conf.Dir = "deployment"
	}

	if !filepath.IsAbs(conf.Dir) {
		conf.Dir = filepath.Join(conf.ProjectDir, conf.Dir)
	}

	if conf.Aiken == "" {
		conf.Aiken = "aiken"
	}

	if conf.CardanoCLI == "" {
		conf.CardanoCLI = "cardano-cli"
	}

	if r == nil {
		r = ExecRunner{}
	}

	return &Deployer{conf: conf, run: r, now: time.Now}
}

// Dir returns the deployment directory.
func (d *Deployer) Dir() string {
	return d.conf.Dir
}

// Deploy runs every step and returns the deployment info.
func (d *Deployer) Deploy(ctx context.Context) (Info, error) {
	if err := d.CheckPrerequisites(ctx); err != nil {
		return Info{}, err
	}

	if !d.conf.SkipBuild {
		if err := d.Build(ctx); err != nil {
			return Info{}, err
		}
	}

	if err := d.Extract(); err != nil {
		return Info{}, err
	}

	contracts, err := d.Addresses(ctx)
	if err != nil {
		return Info{}, err
	}

	info := Info{
		Network:        d.conf.Network,
		DeploymentDate: d.now().UTC().Format(time.RFC3339),
		Contracts:      contracts,
	}
	if !d.mainnet() {
		info.NetworkMagic = d.conf.Magic
	}

	if err = d.WriteListings(info); err != nil {
		return info, err
	}

	return info, nil
}

// command runs the command line cmdline followed by args in the project directory.
func (d *Deployer) command(ctx context.Context, cmdline string, args ...string) (string, error) {
	parts, err := shlex.Split(cmdline)
	if err != nil {
		return "", errors.Wrapf(err, "invalid command %q", cmdline)
	}

	if len(parts) == 0 {
		return "", errors.Errorf("empty command")
	}

	out, err := d.run.Run(ctx, d.conf.ProjectDir, parts[0], append(parts[1:], args...)...)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(out), nil
}

// CheckPrerequisites verifies aiken and cardano-cli answer to --version.
func (d *Deployer) CheckPrerequisites(ctx context.Context) error {
	log.Info("Checking prerequisites...")

	for _, tool := range []struct{ name, cmd, url string }{
		{"aiken", d.conf.Aiken, "https://aiken-lang.org/installation-instructions"},
		{"cardano-cli", d.conf.CardanoCLI, "https://developers.cardano.org/docs/get-started/installing-cardano-node"},
	} {
		v, err := d.command(ctx, tool.cmd, "--version")
		if err != nil {
			return errors.Wrapf(ErrMissingTool, "%s, install from %s: %v", tool.name, tool.url, err)
		}

		log.Infof("%s is installed: %s", tool.name, firstLine(v))
	}

	return nil
}

// Build compiles the validators into plutus.json.
func (d *Deployer) Build(ctx context.Context) error {
	log.Info("Building aiken contracts...")

	if _, err := d.command(ctx, d.conf.Aiken, "build"); err != nil {
		return errors.Wrap(err, "aiken build failed")
	}

	return nil
}

// Extract reads the compiled code of every validator from plutus.json and writes its .plutus and .script files.
func (d *Deployer) Extract() error {
	log.Info("Extracting validator scripts...")

	b, err := os.ReadFile(filepath.Join(d.conf.ProjectDir, PlutusFile))
	if err != nil {
		return errors.Wrap(err, "cannot read plutus.json")
	}

	if !gjson.ValidBytes(b) {
		return errors.Errorf("%s is not valid JSON", PlutusFile)
	}

	if err = os.MkdirAll(d.conf.Dir, 0o755); err != nil {
		return errors.Wrapf(err, "cannot create %s", d.conf.Dir)
	}

	validators := gjson.GetBytes(b, "validators")

	for _, v := range Validators {
		code := compiledCode(validators, v)
		if code == "" {
			return errors.Wrap(ErrValidatorMissing, v)
		}

		if err = d.write(v+".plutus", []byte(code)); err != nil {
			return err
		}

		if err = d.writeJSON(v+".script", script{
			Type:        "PlutusScriptV2",
			Description: v + " validator",
			CborHex:     code,
		}); err != nil {
			return err
		}

		log.Infof("%s validator extracted", v)
	}

	return nil
}

// compiledCode returns the code of the spend or mint validator of name.
func compiledCode(validators gjson.Result, name string) (code string) {
	validators.ForEach(func(_, v gjson.Result) bool {
		if t := v.Get("title").String(); t == name+".spend" || t == name+".mint" {
			code = v.Get("compiledCode").String()

			return false
		}

		return true
	})

	return code
}

func (d *Deployer) mainnet() bool {
	return d.conf.Network == "mainnet"
}

// Addresses derives the address and script hash of every extracted validator.
func (d *Deployer) Addresses(ctx context.Context) (map[string]Contract, error) {
	log.Info("Generating script addresses...")

	net := []string{"--testnet-magic", d.conf.Magic}
	if d.mainnet() {
		net = []string{"--mainnet"}
	}

	contracts := make(map[string]Contract, len(Validators))

	for _, v := range Validators {
		file := filepath.Join(d.conf.Dir, v+".script")

		addr, err := d.command(ctx, d.conf.CardanoCLI, append([]string{"address", "build", "--payment-script-file", file}, net...)...)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot build address of %s", v)
		}

		hash, err := d.command(ctx, d.conf.CardanoCLI, "transaction", "policyid", "--script-file", file)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot hash %s", v)
		}

		if addr == "" || hash == "" {
			return nil, errors.Wrap(ErrEmptyOutput, v)
		}

		contracts[v] = Contract{Address: addr, ScriptHash: hash, ScriptFile: v + ".script"}

		log.Infof("%s: %s", v, addr)
	}

	return contracts, nil
}

// WriteListings writes the address listings, the deployment info and the integration guide.
func (d *Deployer) WriteListings(info Info) error {
	var txt, env strings.Builder

	fmt.Fprintf(&txt, "# Safe-Save Contract Addresses\n# Generated on %s\n# Network: %s\n\n", info.DeploymentDate, info.Network)
	fmt.Fprint(&env, "# Safe-Save Contract Addresses for .env\n# Copy these to the backend .env file\n\n")

	for _, v := range Validators {
		c, ok := info.Contracts[v]
		if !ok {
			continue
		}

		name := strings.ToUpper(v)
		fmt.Fprintf(&txt, "%s_CONTRACT_ADDRESS=%s\n%s_SCRIPT_HASH=%s\n\n", name, c.Address, name, c.ScriptHash)
		fmt.Fprintf(&env, "%s_CONTRACT_ADDRESS=%s\n", name, c.Address)
	}

	if c, ok := info.Contracts["rewards"]; ok {
		fmt.Fprintf(&env, "REWARDS_POLICY_ID=%s\n", c.ScriptHash)
	}

	if err := d.write(AddressesFile, []byte(txt.String())); err != nil {
		return err
	}

	if err := d.write(EnvFile, []byte(env.String())); err != nil {
		return err
	}

	if err := d.writeJSON(InfoFile, info); err != nil {
		return err
	}

	return d.write(GuideFile, []byte(guide(info)))
}

func (d *Deployer) write(name string, b []byte) error {
	if err := renameio.WriteFile(filepath.Join(d.conf.Dir, name), b, 0o644); err != nil {
		return errors.Wrapf(err, "cannot write %s", name)
	}

	return nil
}

func (d *Deployer) writeJSON(name string, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "cannot encode %s", name)
	}

	return d.write(name, b)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}

	return s
}
