// Command quiver runs the integration pipeline against parquet matrix
// directories: anchor discovery, reference mapping, sketch sampling, and
// matrix inspection.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/23skdu/quiver/internal/diskmat"
	"github.com/23skdu/quiver/internal/integrate"
	"github.com/23skdu/quiver/internal/logging"
	"github.com/23skdu/quiver/internal/sketch"
)

const usage = `usage: quiver <command> [flags]

commands:
  integrate   find anchors between a reference and a query matrix
  map         transfer reference labels onto a query matrix
  sketch      sample a representative cell subset from a matrix
  info        describe a parquet matrix directory
`

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	logger, err := logging.NewLogger(logging.Config{Format: "console", Level: "info"})
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to build logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	switch os.Args[1] {
	case "integrate":
		err = runIntegrate(ctx, logger, os.Args[2:])
	case "map":
		err = runMap(ctx, logger, os.Args[2:])
	case "sketch":
		err = runSketch(ctx, logger, os.Args[2:])
	case "info":
		err = runInfo(ctx, os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error("command failed", zap.Error(err))
		os.Exit(1)
	}
}

// pipelineFlags registers the projection and anchor parameters shared by
// integrate and map.
func pipelineFlags(fs *flag.FlagSet) *integrate.Options {
	opts := integrate.DefaultOptions()
	fs.StringVar(&opts.Method, "method", opts.Method, "projection method: pcaproject or cca")
	fs.IntVar(&opts.Dims, "dims", opts.Dims, "shared-space dimensionality")
	fs.BoolVar(&opts.Scale, "scale", opts.Scale, "standardize features to unit variance")
	fs.IntVar(&opts.Anchors.KAnchor, "k-anchor", opts.Anchors.KAnchor, "neighborhood size for the mutual-nearest-neighbor test")
	fs.IntVar(&opts.Anchors.KScore, "k-score", opts.Anchors.KScore, "neighborhood size for anchor scoring")
	fs.IntVar(&opts.Anchors.KFilter, "k-filter", opts.Anchors.KFilter, "feature-space pruning neighborhood (0 disables)")
	fs.IntVar(&opts.Weights.KWeight, "k-weight", opts.Weights.KWeight, "anchors per query cell for transfer weighting")
	return &opts
}

func loadDataset(dir string) (*diskmat.Store, error) {
	return diskmat.Open(dir)
}

func runIntegrate(ctx context.Context, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("integrate", flag.ExitOnError)
	refDir := fs.String("ref", "", "reference matrix directory")
	queryDir := fs.String("query", "", "query matrix directory")
	out := fs.String("out", "anchors.parquet", "output anchor table path")
	opts := pipelineFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *refDir == "" || *queryDir == "" {
		return fmt.Errorf("both -ref and -query are required")
	}
	opts.Logger = logger

	refStore, err := loadDataset(*refDir)
	if err != nil {
		return err
	}
	defer refStore.Close()
	ref, err := refStore.ReadAll()
	if err != nil {
		return err
	}

	queryStore, err := loadDataset(*queryDir)
	if err != nil {
		return err
	}
	defer queryStore.Close()
	query, err := queryStore.ReadAll()
	if err != nil {
		return err
	}

	set, err := integrate.FindAnchors(ctx, *opts, ref, query)
	if err != nil {
		return err
	}
	logger.Info("anchors found",
		zap.Int("anchors", set.Len()),
		zap.Int("features", len(set.Features)))

	return diskmat.WriteAnchors(*out, set)
}

func runMap(ctx context.Context, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("map", flag.ExitOnError)
	refDir := fs.String("ref", "", "reference matrix directory (labels.parquet supplies the fields)")
	queryDir := fs.String("query", "", "query matrix directory")
	out := fs.String("out", "predictions.parquet", "output predictions path")
	opts := pipelineFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *refDir == "" || *queryDir == "" {
		return fmt.Errorf("both -ref and -query are required")
	}
	opts.Logger = logger

	refStore, err := loadDataset(*refDir)
	if err != nil {
		return err
	}
	defer refStore.Close()
	ref, err := refStore.ReadAll()
	if err != nil {
		return err
	}
	fields, err := diskmat.ReadLabels(*refDir, ref.Cells())
	if err != nil {
		return err
	}

	queryStore, err := loadDataset(*queryDir)
	if err != nil {
		return err
	}
	defer queryStore.Close()
	query, err := queryStore.ReadAll()
	if err != nil {
		return err
	}

	res, err := integrate.MapQuery(ctx, *opts, ref, query, fields, nil)
	if err != nil {
		return err
	}
	logger.Info("query mapped",
		zap.Int("anchors", res.Anchors.Len()),
		zap.Int("cells", query.NumCells()),
		zap.Int("fields", len(res.Labels)))

	return diskmat.WritePredictions(*out, query.Cells(), res.Labels)
}

func runSketch(ctx context.Context, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("sketch", flag.ExitOnError)
	in := fs.String("in", "", "input matrix directory")
	out := fs.String("out", "", "output matrix directory for the sketch")
	n := fs.Int("n", 0, "cells to sample")
	method := fs.String("method", "leverage", "sampling method: leverage or uniform")
	seed := fs.Int64("seed", 1, "random seed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" || *out == "" {
		return fmt.Errorf("both -in and -out are required")
	}

	store, err := loadDataset(*in)
	if err != nil {
		return err
	}
	defer store.Close()
	ds, err := store.ReadAll()
	if err != nil {
		return err
	}

	sk, err := sketch.Sample(ctx, ds, *n, sketch.Method(*method), *seed)
	if err != nil {
		return err
	}
	logger.Info("sketch sampled",
		zap.Int("cells", len(sk.Indices)),
		zap.Int("total", ds.NumCells()),
		zap.String("method", *method))

	return diskmat.Write(*out, sk.Data)
}

func runInfo(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: quiver info <matrix-dir>")
	}

	desc, err := diskmat.Describe(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(desc)
}
