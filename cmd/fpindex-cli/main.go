// Command fpindex-cli is a small in-process demo client for the
// fingerprint index: it opens (or creates) a named index directly out of
// a local data directory and applies one command, then exits. There is no
// server to dial — wire protocols are out of scope — so every invocation
// pays its own open/close cost.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/iamNilotpal/fpindex/internal/index"
	"github.com/iamNilotpal/fpindex/internal/oplog"
	"github.com/iamNilotpal/fpindex/internal/registry"
	"github.com/iamNilotpal/fpindex/pkg/logger"
	"github.com/iamNilotpal/fpindex/pkg/options"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage:\n")
	fmt.Fprintf(os.Stderr, "  fpindex-cli create <index>\n")
	fmt.Fprintf(os.Stderr, "  fpindex-cli insert <index> <docId> <hash,hash,...>\n")
	fmt.Fprintf(os.Stderr, "  fpindex-cli delete <index> <docId>\n")
	fmt.Fprintf(os.Stderr, "  fpindex-cli search <index> <hash,hash,...>\n")
	fmt.Fprintf(os.Stderr, "  fpindex-cli attr <index> <name> <value>\n")
	fmt.Fprintf(os.Stderr, "  fpindex-cli get <index> <name>\n")
	fmt.Fprintf(os.Stderr, "  fpindex-cli list\n")
	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	dataDir := os.Getenv("FPINDEX_DATA_DIR")
	if dataDir == "" {
		dataDir = options.DefaultDataDir
	}
	opts := options.NewDefaultOptions()
	opts.DataDir = dataDir

	log := logger.New("fpindex-cli")
	reg := registry.New(opts, log)
	defer reg.Close()

	ctx := context.Background()
	action := os.Args[1]

	switch action {
	case "create":
		if len(os.Args) != 3 {
			usage()
		}
		if err := reg.Create(ctx, os.Args[2]); err != nil {
			fatalf("failed to create index: %v", err)
		}
		fmt.Println("created")

	case "insert":
		if len(os.Args) != 5 {
			usage()
		}
		idx := mustGet(ctx, reg, os.Args[2])
		docID := mustParseUint32(os.Args[3])
		hashes := mustParseHashes(os.Args[4])
		if err := idx.Update(ctx, []oplog.Op{oplog.InsertOrUpdate(docID, hashes)}); err != nil {
			fatalf("failed to insert: %v", err)
		}
		fmt.Println("done")

	case "delete":
		if len(os.Args) != 4 {
			usage()
		}
		idx := mustGet(ctx, reg, os.Args[2])
		docID := mustParseUint32(os.Args[3])
		if err := idx.Update(ctx, []oplog.Op{oplog.DeleteOp(docID)}); err != nil {
			fatalf("failed to delete: %v", err)
		}
		fmt.Println("done")

	case "search":
		if len(os.Args) != 4 {
			usage()
		}
		idx := mustGet(ctx, reg, os.Args[2])
		hashes := mustParseHashes(os.Args[3])
		results, err := idx.Search(ctx, hashes, index.SearchOptions{})
		if err != nil {
			fatalf("search failed: %v", err)
		}
		for _, r := range results {
			fmt.Printf("%d\t%d\n", r.DocID, r.Score)
		}

	case "attr":
		if len(os.Args) != 5 {
			usage()
		}
		idx := mustGet(ctx, reg, os.Args[2])
		if err := idx.Update(ctx, []oplog.Op{oplog.SetAttribute(os.Args[3], os.Args[4])}); err != nil {
			fatalf("failed to set attribute: %v", err)
		}
		fmt.Println("done")

	case "get":
		if len(os.Args) != 4 {
			usage()
		}
		idx := mustGet(ctx, reg, os.Args[2])
		fmt.Println(idx.Attribute(os.Args[3]))

	case "list":
		for _, name := range reg.List() {
			fmt.Println(name)
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown action %q\n", action)
		usage()
	}
}

func mustGet(ctx context.Context, reg *registry.Registry, name string) *index.Index {
	idx, err := reg.Get(ctx, name, true)
	if err != nil {
		fatalf("failed to open index %q: %v", name, err)
	}
	return idx
}

func mustParseUint32(s string) uint32 {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		fatalf("invalid docId %q: %v", s, err)
	}
	return uint32(n)
}

func mustParseHashes(s string) []uint32 {
	parts := strings.Split(s, ",")
	hashes := make([]uint32, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			fatalf("invalid hash %q: %v", p, err)
		}
		hashes = append(hashes, uint32(n))
	}
	return hashes
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
