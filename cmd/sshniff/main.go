package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"sshniff/internal/config"
	"sshniff/internal/engine/analyzer"
	"sshniff/internal/engine/demux"
	"sshniff/internal/model"
	"sshniff/internal/report"
	"sshniff/pkg/pcap"
)

// Exit codes of the analyzer binary.
const (
	exitOK              = 0
	exitCaptureOpen     = 1
	exitNoStreams       = 2
	exitInternal        = 3
)

func main() {
	var (
		filePath   = flag.String("f", "", "pcap/pcapng file to analyze")
		outputDir  = flag.String("o", "", "directory to write per-stream reports into")
		sshPort    = flag.Int("p", 0, "override the SSH port (default 22)")
		configPath = flag.String("c", "", "path to a YAML config file")
		metaOnly   = flag.Bool("m", false, "analyse stream metadata only, skip keystrokes")
		jsonOut    = flag.Bool("json", false, "emit machine-readable reports (to stdout, or as .json files with -o)")
	)
	flag.Parse()

	if *filePath == "" && flag.NArg() > 0 {
		*filePath = flag.Arg(0)
	}
	if *filePath == "" {
		fmt.Fprintln(os.Stderr, "Usage: sshniff [-f] <capture> [-o DIR] [-p PORT] [-c CONFIG] [-m] [-json]")
		os.Exit(exitCaptureOpen)
	}

	// 1. Load configuration and apply flag overrides.
	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
		log.Println("Configuration loaded successfully.")
	}
	if *sshPort > 0 {
		cfg.Analyzer.SSHPort = uint16(*sshPort)
	}
	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}
	if *jsonOut {
		cfg.Output.JSON = true
	}

	// 2. Open the capture and demultiplex it into SSH streams.
	reader, err := pcap.NewReader(*filePath)
	if err != nil {
		log.Printf("Failed to open capture: %v", err)
		os.Exit(exitCaptureOpen)
	}
	defer reader.Close()
	log.Printf("Reading packets from '%s'...", *filePath)

	streams, err := demux.Collect(reader, cfg.Analyzer.SSHPort)
	if err != nil {
		if errors.Is(err, demux.ErrNoSSHStreams) {
			log.Printf("No SSH streams on port %d found in capture.", cfg.Analyzer.SSHPort)
			os.Exit(exitNoStreams)
		}
		log.Printf("Demultiplexing failed: %v", err)
		os.Exit(exitInternal)
	}
	log.Printf("Found %d SSH stream(s).", len(streams))

	// 3. Analyse every stream.
	reports, err := analyzer.AnalyzeAll(streams, cfg.Analyzer, *metaOnly)
	if err != nil {
		log.Printf("Analysis failed: %v", err)
		os.Exit(exitInternal)
	}

	// 4. Deliver the reports.
	if err := deliver(reports, cfg); err != nil {
		log.Printf("Failed to deliver reports: %v", err)
		os.Exit(exitInternal)
	}

	os.Exit(exitOK)
}

// deliver prints every report and fans it out to the configured writers.
func deliver(reports []*model.StreamReport, cfg *config.Config) error {
	writers, err := buildWriters(cfg)
	if err != nil {
		return err
	}
	defer func() {
		for _, w := range writers {
			if cerr := w.Close(); cerr != nil {
				log.Printf("Warning: failed to close writer: %v", cerr)
			}
		}
	}()

	for _, r := range reports {
		if cfg.Output.JSON && cfg.Output.Dir == "" {
			data, jerr := report.JSON(r)
			if jerr != nil {
				return jerr
			}
			fmt.Println(string(data))
		} else {
			fmt.Print(report.Text(r))
			fmt.Println()
		}

		for _, w := range writers {
			if werr := w.Write(r); werr != nil {
				log.Printf("Warning: report writer failed for stream %d: %v", r.StreamID, werr)
			}
		}
	}
	return nil
}

// buildWriters assembles the enabled report sinks.
func buildWriters(cfg *config.Config) ([]model.Writer, error) {
	var writers []model.Writer

	if cfg.Output.Dir != "" {
		w, err := report.NewFileWriter(cfg.Output.Dir, cfg.Output.JSON)
		if err != nil {
			return nil, err
		}
		writers = append(writers, w)
	}

	if cfg.ClickHouse.Enabled {
		w, err := report.NewClickHouseWriter(cfg.ClickHouse)
		if err != nil {
			log.Printf("Warning: ClickHouse writer disabled: %v", err)
		} else {
			writers = append(writers, w)
		}
	}

	if cfg.NATS.Enabled {
		w, err := report.NewNATSWriter(cfg.NATS)
		if err != nil {
			log.Printf("Warning: NATS writer disabled: %v", err)
		} else {
			writers = append(writers, w)
		}
	}

	return writers, nil
}
