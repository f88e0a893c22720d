// Command segarchive drives the object-store-backed segment archive from
// the shell: push a locally rotated segment file into the archive, fetch
// or list what's archived for a namespace, and restore a database file
// from the newest archived frame.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/iamNilotpal/segarchive/internal/segmentfile"
	"github.com/iamNilotpal/segarchive/pkg/filesys"
	"github.com/iamNilotpal/segarchive/pkg/options"
	"github.com/iamNilotpal/segarchive/pkg/segarchive"
	"github.com/iamNilotpal/segarchive/pkg/seginfo"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "push":
		err = runPush(os.Args[2:])
	case "fetch":
		err = runFetch(os.Args[2:])
	case "restore":
		err = runRestore(os.Args[2:])
	case "meta":
		err = runMeta(os.Args[2:])
	case "list":
		err = runList(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("segarchive %s: %v", os.Args[1], err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: segarchive <push|fetch|restore|meta|list> [flags]")
}

// commonFlags registers the object-store addressing flags every
// subcommand needs, returning the functional options they produce once
// Parse has run.
type commonFlags struct {
	bucket         string
	clusterID      string
	region         string
	endpoint       string
	forcePathStyle bool
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.bucket, "bucket", "", "object-store bucket (required)")
	fs.StringVar(&c.clusterID, "cluster", "", "cluster id every namespace is scoped under (required)")
	fs.StringVar(&c.region, "region", options.DefaultRegion, "object-store region")
	fs.StringVar(&c.endpoint, "endpoint", "", "object-store endpoint override, for S3-compatible stores")
	fs.BoolVar(&c.forcePathStyle, "path-style", options.DefaultForcePathStyle, "use path-style bucket addressing")
}

func (c *commonFlags) options() []options.OptionFunc {
	return []options.OptionFunc{
		options.WithBucket(c.bucket),
		options.WithClusterID(c.clusterID),
		options.WithRegion(c.region),
		options.WithEndpoint(c.endpoint),
		options.WithForcePathStyle(c.forcePathStyle),
	}
}

func newInstance(ctx context.Context, c *commonFlags) (*segarchive.Instance, error) {
	return segarchive.New(ctx, "segarchive-cli", false, prometheus.DefaultRegisterer, c.options()...)
}

func runPush(args []string) error {
	fs := flag.NewFlagSet("push", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	segmentDir := fs.String("dir", "", "directory holding rotated local segment files (required)")
	prefix := fs.String("prefix", "segment", "segment filename prefix")
	namespace := fs.String("namespace", "", "namespace to archive into (required)")
	indexPath := fs.String("index", "", "path to the segment's index payload bytes (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *segmentDir == "" || *namespace == "" {
		return fmt.Errorf("-dir and -namespace are required")
	}

	segPath, err := seginfo.GetLastSegmentName(*segmentDir, ".", *prefix)
	if err != nil {
		return fmt.Errorf("discovering latest local segment: %w", err)
	}
	if segPath == "" {
		return fmt.Errorf("no segment files matching prefix %q found under %s", *prefix, *segmentDir)
	}

	raw, err := os.Open(segPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", segPath, err)
	}
	defer raw.Close()

	header, err := segmentfile.ReadHeader(raw)
	if err != nil {
		return fmt.Errorf("reading segment header from %s: %w", segPath, err)
	}

	if seqID, perr := seginfo.ParseSegmentID(segPath, *prefix); perr == nil {
		log.Printf("local sequence id %d for %s", seqID, segPath)
	}

	var indexPayload []byte
	if *indexPath != "" {
		indexPayload, err = filesys.ReadFile(*indexPath)
		if err != nil {
			return fmt.Errorf("reading index payload %s: %w", *indexPath, err)
		}
	}

	ctx := context.Background()
	instance, err := newInstance(ctx, &common)
	if err != nil {
		return fmt.Errorf("constructing archive client: %w", err)
	}

	meta := segarchive.SegmentMeta{
		Namespace:    segarchive.Namespace(*namespace),
		SegmentID:    uuid.New(),
		StartFrameNo: header.StartFrameNo,
		EndFrameNo:   header.EndFrameNo,
		CreatedAt:    time.Now(),
	}
	if err := instance.Store(ctx, meta, filesys.WrapFile(raw), indexPayload); err != nil {
		return fmt.Errorf("storing segment: %w", err)
	}

	log.Printf("pushed %s: frames [%d,%d], segment id %s", segPath, header.StartFrameNo, header.EndFrameNo, meta.SegmentID)
	return nil
}

func runFetch(args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	namespace := fs.String("namespace", "", "namespace to fetch from (required)")
	frameNo := fs.Uint64("frame", 0, "frame number the fetched segment must cover")
	dest := fs.String("dest", "", "destination path for the segment's data object (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *namespace == "" || *dest == "" {
		return fmt.Errorf("-namespace and -dest are required")
	}

	ctx := context.Background()
	instance, err := newInstance(ctx, &common)
	if err != nil {
		return fmt.Errorf("constructing archive client: %w", err)
	}

	if _, err := instance.FetchSegment(ctx, segarchive.Namespace(*namespace), *frameNo, *dest); err != nil {
		return fmt.Errorf("fetching segment: %w", err)
	}
	log.Printf("fetched segment covering frame %d to %s", *frameNo, *dest)
	return nil
}

func runRestore(args []string) error {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	namespace := fs.String("namespace", "", "namespace to restore (required)")
	dest := fs.String("dest", "", "destination database file path (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *namespace == "" || *dest == "" {
		return fmt.Errorf("-namespace and -dest are required")
	}

	ctx := context.Background()
	instance, err := newInstance(ctx, &common)
	if err != nil {
		return fmt.Errorf("constructing archive client: %w", err)
	}

	out, err := filesys.Open(*dest, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("opening destination: %w", err)
	}
	defer out.Close()

	opts := segarchive.RestoreOptions{Kind: segarchive.RestoreLatest}
	if err := instance.Restore(ctx, segarchive.Namespace(*namespace), opts, out); err != nil {
		return fmt.Errorf("restoring: %w", err)
	}
	log.Printf("restored namespace %s to %s", *namespace, *dest)
	return nil
}

func runMeta(args []string) error {
	fs := flag.NewFlagSet("meta", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	namespace := fs.String("namespace", "", "namespace to inspect (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *namespace == "" {
		return fmt.Errorf("-namespace is required")
	}

	ctx := context.Background()
	instance, err := newInstance(ctx, &common)
	if err != nil {
		return fmt.Errorf("constructing archive client: %w", err)
	}

	meta, err := instance.Meta(ctx, segarchive.Namespace(*namespace))
	if err != nil {
		return fmt.Errorf("reading meta: %w", err)
	}
	fmt.Printf("max_frame_no=%d\n", meta.MaxFrameNo)
	return nil
}

func runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	namespace := fs.String("namespace", "", "namespace to list (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *namespace == "" {
		return fmt.Errorf("-namespace is required")
	}

	ctx := context.Background()
	instance, err := newInstance(ctx, &common)
	if err != nil {
		return fmt.Errorf("constructing archive client: %w", err)
	}

	for info, err := range instance.ListSegments(ctx, segarchive.Namespace(*namespace), 0) {
		if err != nil {
			return fmt.Errorf("listing segments: %w", err)
		}
		fmt.Printf("%s  [%d,%d]  %d bytes  %s\n", info.Key.SegmentID, info.Key.StartFrameNo, info.Key.EndFrameNo, info.Size, info.CreatedAt.Format(time.RFC3339))
	}
	return nil
}
