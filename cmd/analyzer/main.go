package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"report-analyzer/internal/api"
	"report-analyzer/internal/config"
	"report-analyzer/internal/knowledge"
	"report-analyzer/internal/logging"
	"report-analyzer/internal/memory"
	"report-analyzer/pkg/state"
	"report-analyzer/pkg/workflow"
)

var (
	configFile string
	verbose    bool
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "analyzer",
		Short: "Report Analyzer - Multi-agent annual report analysis",
		Long: `Analyzes annual report text with section agents and parallel sub-agents, builds a knowledge
graph of the entities it mentions, and writes a final report with risks, metrics, governance and
ESG findings.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Analyze command
	var analyzeCmd = &cobra.Command{
		Use:   "analyze [path]",
		Short: "Analyze a report",
		Long:  `Analyze the report at the specified path (file or directory) and write the outputs.`,
		Args:  cobra.ExactArgs(1),
		RunE:  runAnalyze,
	}
	addAnalyzeFlags(analyzeCmd)

	// Watch command
	var watchCmd = &cobra.Command{
		Use:   "watch [dir]",
		Short: "Re-analyze a directory whenever a report changes",
		Long:  `Watch a directory and run the analysis again when a .md, .json or .txt file is written.`,
		Args:  cobra.ExactArgs(1),
		RunE:  runWatch,
	}
	addAnalyzeFlags(watchCmd)

	// Graph commands
	var graphCmd = &cobra.Command{
		Use:   "graph",
		Short: "Knowledge graph tools",
		Long:  `Inspect a knowledge store written by a previous analysis.`,
	}
	graphCmd.PersistentFlags().String("store", "", "knowledge store directory (defaults to the configured one)")

	var graphExportCmd = &cobra.Command{
		Use:   "export [file]",
		Short: "Export the knowledge graph as GEXF",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runGraphExport,
	}

	var graphStatsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show knowledge graph statistics",
		RunE:  runGraphStats,
	}
	graphStatsCmd.Flags().Int("top", 5, "number of central entities to list")
	graphStatsCmd.Flags().String("centrality", knowledge.CentralityDegree, "centrality measure: degree, closeness or betweenness")

	var graphPathsCmd = &cobra.Command{
		Use:   "paths [from] [to]",
		Short: "List the paths between two entities",
		Long:  `List the simple paths between two entities, given by id or name.`,
		Args:  cobra.ExactArgs(2),
		RunE:  runGraphPaths,
	}
	graphPathsCmd.Flags().Int("max-len", 3, "maximum number of relationships in a path")

	var graphSubgraphCmd = &cobra.Command{
		Use:   "subgraph [entity...]",
		Short: "Export the graph around some entities as GEXF",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runGraphSubgraph,
	}
	graphSubgraphCmd.Flags().Bool("neighbors", true, "include direct neighbours")
	graphSubgraphCmd.Flags().StringP("out", "o", "", "output file (defaults to stdout)")

	graphCmd.AddCommand(graphExportCmd, graphStatsCmd, graphPathsCmd, graphSubgraphCmd)

	// Memory commands
	var memoryCmd = &cobra.Command{
		Use:   "memory",
		Short: "Long-term agent memory",
	}

	var memoryQueryCmd = &cobra.Command{
		Use:   "query",
		Short: "Print the memory records of an agent",
		RunE:  runMemoryQuery,
	}
	memoryQueryCmd.Flags().String("agent", "", "agent name, e.g. mdna_agent")
	memoryQueryCmd.Flags().String("section", "", "section name")
	_ = memoryQueryCmd.MarkFlagRequired("agent")
	memoryCmd.AddCommand(memoryQueryCmd)

	// Config command
	var configCmd = &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  `Manage analyzer configuration files.`,
	}

	var configInitCmd = &cobra.Command{
		Use:   "init [filename]",
		Short: "Create a default configuration file",
		Long:  `Generate a default configuration file with all available options. A .yaml name writes YAML.`,
		Args:  cobra.MaximumNArgs(1),
		RunE:  runConfigInit,
	}

	var configValidateCmd = &cobra.Command{
		Use:   "validate [filename]",
		Short: "Validate a configuration file",
		Long:  `Validate the syntax and values of a configuration file.`,
		Args:  cobra.ExactArgs(1),
		RunE:  runConfigValidate,
	}

	configCmd.AddCommand(configInitCmd, configValidateCmd)

	// Serve command
	var serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE:  runServe,
	}
	serveCmd.Flags().String("addr", "", "listen address (overrides server.addr)")

	// Status command
	var statusCmd = &cobra.Command{
		Use:   "status [state-file]",
		Short: "Show the progress recorded in a saved state or checkpoint",
		Long:  `Show the progress recorded in final_state.json or a checkpoint_<n>.json file. Defaults to the final state in the output directory.`,
		Args:  cobra.MaximumNArgs(1),
		RunE:  runStatus,
	}

	rootCmd.AddCommand(analyzeCmd, watchCmd, graphCmd, memoryCmd, configCmd, serveCmd, statusCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func addAnalyzeFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "", "output directory")
	cmd.Flags().Int("max-chars", 0, "maximum characters per chunk")
	cmd.Flags().String("runtime", "", "summary runtime: auto, llm or deterministic")
	cmd.Flags().Bool("force-llm", false, "use the llm runtime")
	cmd.Flags().Bool("web-search", false, "enable web search for mentioned entities")
	cmd.Flags().Bool("finance", false, "enable financial data lookups")
	cmd.Flags().Bool("news", false, "enable recent news lookups")
	cmd.Flags().Int("concurrency", 0, "number of chunks analyzed in parallel")
}

// applyAnalyzeFlags copies the flags the user set onto cfg and validates the result.
func applyAnalyzeFlags(cmd *cobra.Command, cfg *config.AnalyzerConfig) error {
	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.OutputDir, _ = flags.GetString("output")
	}
	if flags.Changed("max-chars") {
		cfg.MaxChunkChars, _ = flags.GetInt("max-chars")
	}
	if flags.Changed("runtime") {
		cfg.Runtime, _ = flags.GetString("runtime")
	}
	if force, _ := flags.GetBool("force-llm"); force {
		cfg.Runtime = config.RuntimeLLM
	}
	if flags.Changed("web-search") {
		cfg.External.WebSearch.Enabled, _ = flags.GetBool("web-search")
	}
	if flags.Changed("finance") {
		cfg.External.Finance.Enabled, _ = flags.GetBool("finance")
	}
	if flags.Changed("news") {
		cfg.External.News.Enabled, _ = flags.GetBool("news")
	}
	if flags.Changed("concurrency") {
		cfg.MaxConcurrency, _ = flags.GetInt("concurrency")
	}
	return cfg.Validate()
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	path := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := applyAnalyzeFlags(cmd, cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	analyzer, err := workflow.New(cfg, workflow.WithLogger(newLogger(cfg)))
	if err != nil {
		return fmt.Errorf("failed to create analyzer: %w", err)
	}
	defer analyzer.Close()

	if verbose {
		fmt.Printf("Starting analysis of: %s\n", path)
		fmt.Printf("Configuration: %s\n", cfg.String())
	}

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startTime := time.Now()
	res, err := analyzer.Run(ctx, path)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	printResult(res, time.Since(startTime))
	return nil
}

func printResult(res *workflow.Result, duration time.Duration) {
	stats := res.Summary
	fmt.Printf("\nAnalysis completed successfully!\n")
	fmt.Printf("Duration: %v\n", duration)
	fmt.Printf("Chunks processed: %d/%d\n", stats.ChunksProcessed, stats.TotalChunks)
	fmt.Printf("Tasks completed: %d\n", stats.TasksCompleted)
	fmt.Printf("Sections analyzed: %v\n", stats.SectionsAnalyzed)
	fmt.Printf("Knowledge graph: %d entities, %d relationships\n",
		res.Report.KnowledgeGraph.TotalEntities, res.Report.KnowledgeGraph.TotalRelationships)
	fmt.Printf("Risks: %s\n", res.Report.RiskAssessment.RiskSummary)
	fmt.Printf("Warnings: %d\n", stats.Warnings)
	fmt.Printf("\nSummary written to: %s\n", res.Outputs.Summary)
	fmt.Printf("Final state written to: %s\n", res.Outputs.State)
	fmt.Printf("Knowledge store written to: %s\n", res.Outputs.KnowledgeStore)
}

func runGraphExport(cmd *cobra.Command, args []string) error {
	kg, err := loadKnowledgeStore(cmd)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		return kg.WriteGEXF(os.Stdout)
	}

	f, err := os.Create(args[0])
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", args[0], err)
	}
	defer f.Close()
	if err := kg.WriteGEXF(f); err != nil {
		return err
	}
	fmt.Printf("Graph exported to: %s\n", args[0])
	return nil
}

func runGraphStats(cmd *cobra.Command, _ []string) error {
	kg, err := loadKnowledgeStore(cmd)
	if err != nil {
		return err
	}
	top, _ := cmd.Flags().GetInt("top")
	kind, _ := cmd.Flags().GetString("centrality")
	return printGraphStats(os.Stdout, kg, kind, top)
}

func printGraphStats(w io.Writer, kg *knowledge.Graph, kind string, top int) error {
	scores, err := kg.Centrality(kind)
	if err != nil {
		return err
	}

	stats := kg.Stats()
	fmt.Fprintln(w, "Knowledge Graph Statistics:")
	fmt.Fprintf(w, "Entities: %d\n", stats.TotalEntities)
	fmt.Fprintf(w, "Relationships: %d\n", stats.TotalRelationships)
	fmt.Fprintf(w, "Average degree: %.2f\n", stats.AvgDegree)
	fmt.Fprintf(w, "Density: %.4f\n", stats.Density)
	fmt.Fprintf(w, "Connected components: %d\n", stats.ConnectedComponents)

	if len(stats.EntityTypes) > 0 {
		types := make([]string, 0, len(stats.EntityTypes))
		for t := range stats.EntityTypes {
			types = append(types, t)
		}
		sort.Strings(types)

		fmt.Fprintln(w, "\nEntity types:")
		for _, t := range types {
			fmt.Fprintf(w, "  %s: %d\n", t, stats.EntityTypes[t])
		}
	}

	if ids := knowledge.TopCentral(scores, top); len(ids) > 0 {
		fmt.Fprintf(w, "\nMost central entities (%s):\n", kind)
		for _, id := range ids {
			e, _ := kg.Entity(id)
			fmt.Fprintf(w, "  %s (%s): %.3f\n", e.Name, e.Type, scores[id])
		}
	}
	return nil
}

func runGraphPaths(cmd *cobra.Command, args []string) error {
	kg, err := loadKnowledgeStore(cmd)
	if err != nil {
		return err
	}
	maxLen, _ := cmd.Flags().GetInt("max-len")
	return printPaths(os.Stdout, kg, args[0], args[1], maxLen)
}

func printPaths(w io.Writer, kg *knowledge.Graph, from, to string, maxLen int) error {
	src, err := resolveEntity(kg, from)
	if err != nil {
		return err
	}
	dst, err := resolveEntity(kg, to)
	if err != nil {
		return err
	}

	paths := kg.FindPaths(src, dst, maxLen)
	if len(paths) == 0 {
		fmt.Fprintf(w, "No path from %s to %s within %d relationships\n", from, to, maxLen)
		return nil
	}
	for _, path := range paths {
		names := make([]string, len(path))
		for i, id := range path {
			e, _ := kg.Entity(id)
			names[i] = e.Name
		}
		fmt.Fprintln(w, strings.Join(names, " -> "))
	}
	return nil
}

func runGraphSubgraph(cmd *cobra.Command, args []string) error {
	kg, err := loadKnowledgeStore(cmd)
	if err != nil {
		return err
	}

	ids := make([]string, len(args))
	for i, ref := range args {
		if ids[i], err = resolveEntity(kg, ref); err != nil {
			return err
		}
	}
	neighbors, _ := cmd.Flags().GetBool("neighbors")
	sub := kg.Subgraph(ids, neighbors)

	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		return sub.WriteGEXF(os.Stdout)
	}
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", out, err)
	}
	defer f.Close()
	if err := sub.WriteGEXF(f); err != nil {
		return err
	}
	fmt.Printf("Subgraph with %d entities exported to: %s\n", sub.Len(), out)
	return nil
}

// resolveEntity accepts an entity id or a case-insensitive entity name.
func resolveEntity(kg *knowledge.Graph, ref string) (string, error) {
	if _, ok := kg.Entity(ref); ok {
		return ref, nil
	}
	for _, e := range kg.Entities() {
		if strings.EqualFold(e.Name, ref) {
			return e.ID, nil
		}
	}
	return "", fmt.Errorf("entity %q not found", ref)
}

func loadKnowledgeStore(cmd *cobra.Command) (*knowledge.Graph, error) {
	dir, _ := cmd.Flags().GetString("store")
	if dir == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		dir = cfg.KnowledgeStoreDir()
	}
	kg, err := knowledge.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load knowledge store %s: %w", dir, err)
	}
	return kg, nil
}

func runMemoryQuery(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, err := memory.NewFactory().Create(&cfg.Memory)
	if err != nil {
		return fmt.Errorf("failed to open memory store: %w", err)
	}
	defer store.Close()

	agent, _ := cmd.Flags().GetString("agent")
	section, _ := cmd.Flags().GetString("section")
	records, err := store.QueryAll(cmd.Context(), agent, section)
	if err != nil {
		return fmt.Errorf("memory query failed: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return err
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "%d records for %s/%s\n", len(records), agent, section)
	}
	return nil
}

func runConfigInit(_ *cobra.Command, args []string) error {
	filename := "analyzer-config.yaml"
	if len(args) > 0 {
		filename = args[0]
	}

	// Create default configuration
	cfg := config.DefaultConfig()

	// Save to file
	if err := cfg.SaveToFile(filename); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}

	fmt.Printf("Default configuration saved to: %s\n", filename)
	fmt.Printf("Edit this file to customize your analyzer settings.\n")

	return nil
}

func runConfigValidate(_ *cobra.Command, args []string) error {
	filename := args[0]

	cfg, err := config.LoadConfigFromFile(filename)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Printf("Configuration file '%s' is valid!\n", filename)

	if verbose {
		fmt.Printf("\nConfiguration details:\n")
		fmt.Println(cfg.String())
	}

	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}

	logger := newLogger(cfg)
	analyzer, err := workflow.New(cfg, workflow.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create analyzer: %w", err)
	}
	defer analyzer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return api.NewServer(ctx, analyzer, cfg, logger).ListenAndServe(ctx)
}

func runStatus(_ *cobra.Command, args []string) error {
	var path string
	if len(args) > 0 {
		path = args[0]
	} else {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		path = filepath.Join(cfg.OutputDir, workflow.StateFile)
	}

	board := state.New()
	if err := board.LoadCheckpoint(path); err != nil {
		return err
	}
	printStatus(os.Stdout, board)
	return nil
}

func printStatus(w io.Writer, board *state.Graph) {
	sum := board.Summary()
	fmt.Fprintf(w, "Run: %s\n", sum.GraphID)
	fmt.Fprintf(w, "Chunks processed: %d/%d\n", sum.ChunksProcessed, sum.TotalChunks)
	fmt.Fprintf(w, "Tasks completed: %d/%d\n", sum.TasksCompleted, sum.TotalTasks)
	fmt.Fprintf(w, "Sections analyzed: %v\n", sum.SectionsAnalyzed)
	if c, ok := board.CurrentChunk(); ok {
		fmt.Fprintf(w, "Next chunk: %d (%s)\n", c.Index, c.ID)
	} else {
		fmt.Fprintln(w, "Next chunk: none, every chunk is processed")
	}
	for _, e := range board.Errors() {
		fmt.Fprintf(w, "Error: %s\n", e)
	}
	fmt.Fprintf(w, "Warnings: %d\n", sum.Warnings)
}

func loadConfig() (*config.AnalyzerConfig, error) {
	cfg, path, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if verbose {
		if path == "" {
			fmt.Fprintln(os.Stderr, "No configuration file found, using defaults")
		} else {
			fmt.Fprintf(os.Stderr, "Configuration loaded from: %s\n", path)
		}
	}
	return cfg, nil
}

func newLogger(cfg *config.AnalyzerConfig) zerolog.Logger {
	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	return logging.New(logging.Options{Level: level, Format: cfg.LogFormat})
}
