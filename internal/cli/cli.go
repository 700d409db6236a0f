package cli

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	commands "github.com/urfave/cli/v3"

	"github.com/xenrt/haoracle/internal/attest"
	"github.com/xenrt/haoracle/internal/cluster"
	"github.com/xenrt/haoracle/internal/config"
	"github.com/xenrt/haoracle/internal/oracle"
	"github.com/xenrt/haoracle/internal/partition"
	"github.com/xenrt/haoracle/internal/registry"
	_ "github.com/xenrt/haoracle/scenarios/ha"
)

var (
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
	bold  = color.New(color.Bold).SprintFunc()
)

func InitPool(ctx context.Context, cmd *commands.Command) error {
	targetPath := "."
	if cmd.NArg() > 0 {
		targetPath = cmd.Args().First()
	}

	hosts := int(cmd.Int("hosts"))
	if hosts < 1 {
		return fmt.Errorf("A pool needs at least one host\nUsage: haoracle init [path] --hosts N")
	}

	// Create directory if specified
	if targetPath != "." {
		if err := os.MkdirAll(targetPath, 0755); err != nil {
			return fmt.Errorf("Failed to create directory %s: %w", targetPath, err)
		}
	}

	configPath := filepath.Join(targetPath, config.DefaultPath)
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("%s already exists", configPath)
	}

	topology, err := cluster.Generate(hosts)
	if err != nil {
		return err
	}

	if err := config.SaveTo(config.New(topology), configPath); err != nil {
		return err
	}

	fmt.Printf("Created %s describing a %d host pool.\n", configPath, hosts)
	fmt.Println()
	fmt.Println("Replace the generated host UUIDs with your hosts', then set")
	fmt.Println("  harness.observe  - prints {\"liveset\": [...], \"master\": \"...\"}")
	fmt.Println("  harness.inject   - applies a fault, e.g. 'heartbeat <from> <to>'")
	fmt.Println("  harness.undo     - reverses a fault")
	fmt.Println()
	fmt.Println("List scenarios with 'haoracle list'.")

	return nil
}

func ListScenarios(ctx context.Context, cmd *commands.Command) error {
	fmt.Println("Available scenarios:")

	for _, family := range registry.GetAllFamilies() {
		fmt.Println()
		fmt.Println(bold(family.Name))

		for _, key := range family.ScenarioOrder {
			s := family.Scenarios[key]

			kind := "temporary+permanent"
			switch {
			case s.Randomized:
				kind = "randomized"
			case !s.Temporary:
				kind = "permanent"
			}

			fmt.Printf("  %-30s - %s (%s, %s x%d, %s)\n",
				key, s.Name, s.Requires(), s.Timeout, s.Multiplier, kind)
		}
	}

	fmt.Println()
	fmt.Println("Predict with: haoracle predict <scenario>")

	return nil
}

func PredictScenario(ctx context.Context, cmd *commands.Command) error {
	if cmd.NArg() != 1 {
		return fmt.Errorf("Scenario name is required\nUsage: haoracle predict <scenario>")
	}

	scenario, err := registry.GetScenario(cmd.Args().First())
	if err != nil {
		return err
	}

	_, topology, err := load(cmd)
	if err != nil {
		return err
	}

	faults, result, err := scenario.Predict(topology, evaluator(cmd))
	if err != nil {
		return err
	}

	fmt.Println(bold(scenario.Name))
	fmt.Println()
	fmt.Println("Faults:")
	for _, f := range faults {
		fmt.Printf("  %s\n", f)
	}
	fmt.Println()

	printResult(topology, result)

	return nil
}

func PartitionPool(ctx context.Context, cmd *commands.Command) error {
	if cmd.NArg() != 1 {
		return fmt.Errorf("Partition shape is required\nUsage: haoracle partition <largest|smallest|equal>")
	}

	shape, err := partition.ParseShape(cmd.Args().First())
	if err != nil {
		return err
	}

	_, topology, err := load(cmd)
	if err != nil {
		return err
	}

	plan, err := partition.Build(topology, shape)
	if err != nil {
		return err
	}

	result, err := evaluator(cmd).Predict(topology, plan.State().Snapshot())
	if err != nil {
		return err
	}

	for i, half := range plan.Halves {
		mark := red("✗")
		if i == plan.Winner {
			mark = green("✓")
		}

		fmt.Printf("%s half %d: %s\n", mark, i, names(topology, half))
	}
	fmt.Println()

	printResult(topology, result)

	return nil
}

func RunScenario(ctx context.Context, cmd *commands.Command) error {
	if cmd.NArg() != 1 {
		return fmt.Errorf("Scenario name is required\nUsage: haoracle run <scenario> [--dry-run] [--verbose]")
	}

	scenario, err := registry.GetScenario(cmd.Args().First())
	if err != nil {
		return err
	}

	cfg, topology, err := load(cmd)
	if err != nil {
		return err
	}

	timeouts, err := cfg.HATimeouts()
	if err != nil {
		return err
	}

	poll, err := cfg.Harness.Poll()
	if err != nil {
		return err
	}

	seed := cmd.Uint64("seed")
	if !cmd.IsSet("seed") {
		seed = rand.Uint64()
	}

	suite := scenario.Fn().
		WithConfig(&attest.Config{
			Observe:           cfg.Harness.Observe,
			Inject:            cfg.Harness.Inject,
			Undo:              cfg.Harness.Undo,
			DryRun:            cmd.Bool("dry-run"),
			Verbose:           cmd.Bool("verbose"),
			Timeouts:          timeouts,
			Arbitration:       evaluator(cmd).Arbitration,
			Scale:             cfg.Harness.Scale,
			RetryPollInterval: poll,
			Seed:              seed,
			Operations:        int(cmd.Int("operations")),
			Playback:          cmd.StringSlice("playback"),
		}).
		WithPool(topology)

	fmt.Printf("%s on %d hosts\n", bold(scenario.Name), topology.Len())
	if scenario.Randomized {
		fmt.Printf("Seed %d\n", seed)
	}
	fmt.Println()

	passed := suite.Run(ctx)

	if skipped := suite.SkipCrashdump(); len(skipped) > 0 {
		fmt.Printf("\nExpected crash dumps: %s\n", names(topology, skipped))
	}

	if !passed {
		return fmt.Errorf("scenario %s failed", scenario.Key)
	}

	return nil
}

func load(cmd *commands.Command) (*config.Config, *cluster.Topology, error) {
	cfg, err := config.LoadFrom(cmd.String("config"))
	if err != nil {
		return nil, nil, err
	}

	topology, err := cfg.Topology()
	if err != nil {
		return nil, nil, err
	}

	return cfg, topology, nil
}

func evaluator(cmd *commands.Command) oracle.Evaluator {
	if cmd.Bool("strict") {
		return oracle.Evaluator{Arbitration: oracle.ArbitrateStrict}
	}

	return oracle.Evaluator{}
}

func printResult(t *cluster.Topology, result *oracle.Result) {
	if result.TotalFencing() {
		fmt.Printf("%s every host fences (%s)\n", red("✗"), result.Rule())
		return
	}

	fmt.Printf("Liveset:     %s\n", names(t, result.Liveset()))

	coordinator := t.Name(result.Coordinator())
	if result.CoordinatorChanged() {
		coordinator += fmt.Sprintf(" (re-elected, was %s)", t.Name(result.PreviousCoordinator()))
	}
	fmt.Printf("Coordinator: %s\n", coordinator)

	if fencing := result.Fencing(); len(fencing) > 0 {
		fmt.Printf("Fencing:     %s\n", names(t, fencing))
	}

	if partitions := result.Partitions(); len(partitions) > 1 {
		groups := make([]string, len(partitions))
		for i, p := range partitions {
			groups[i] = "{" + names(t, p) + "}"
		}
		fmt.Printf("Partitions:  %s\n", strings.Join(groups, " "))
	}

	fmt.Printf("Decided by:  %s\n", result.Rule())
}

func names(t *cluster.Topology, ids []cluster.NodeID) string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = t.Name(id)
	}

	return strings.Join(out, ", ")
}
