package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/kjk/akv/keydir"
	"github.com/kjk/akv/kvstore"
	"github.com/kjk/akv/log"
)

const usage = `Usage:
  akv [flags] FILE get KEY
  akv [flags] FILE insert KEY VALUE
  akv [flags] FILE update KEY VALUE
  akv [flags] FILE delete KEY
  akv [flags] FILE keys
  akv [flags] FILE stats

Flags:
`

// number of arguments after FILE, including the command
var cmdArgCount = map[string]int{
	"get":    2,
	"insert": 3,
	"update": 3,
	"delete": 2,
	"keys":   1,
	"stats":  1,
}

type config struct {
	indexMode   string
	syncWrite   bool
	compression keydir.Compression
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprint(w, usage)
	fs.SetOutput(w)
	fs.PrintDefaults()
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("akv", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	indexMode := fs.String("index", "scan", "how to build the index: scan or snapshot")
	syncWrite := fs.Bool("sync", false, "fsync after every write")
	compress := fs.String("compress", "zstd", "compression of index snapshots: none, zstd or brotli")
	verbose := fs.Bool("v", false, "verbose logging")
	logDir := fs.String("log-dir", "", "directory for log files")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			printUsage(stdout, fs)
			return 0
		}
		fmt.Fprintf(stderr, "%s\n", err)
		printUsage(stderr, fs)
		return 1
	}

	rest := fs.Args()
	if len(rest) < 2 {
		printUsage(stderr, fs)
		return 1
	}
	cmd := rest[1]
	n, ok := cmdArgCount[cmd]
	if !ok {
		fmt.Fprintf(stderr, "unknown command '%s'\n", cmd)
		printUsage(stderr, fs)
		return 1
	}
	if len(rest)-1 != n {
		fmt.Fprintf(stderr, "'%s' expects %d argument(s), got %d\n", cmd, n-1, len(rest)-2)
		printUsage(stderr, fs)
		return 1
	}
	if *indexMode != "scan" && *indexMode != "snapshot" {
		fmt.Fprintf(stderr, "invalid -index '%s', must be scan or snapshot\n", *indexMode)
		return 1
	}
	c, err := keydir.ParseCompression(*compress)
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return 1
	}

	log.Output = stderr
	log.Verbose = *verbose
	log.Init(&log.Config{Dir: *logDir})
	defer log.Close()

	conf := &config{
		indexMode:   *indexMode,
		syncWrite:   *syncWrite,
		compression: c,
	}
	err = runCommand(conf, rest[0], rest[1:], stdout)
	if err == nil {
		return 0
	}
	if errors.Is(err, kvstore.ErrKeyNotFound) {
		fmt.Fprintf(stderr, "%s not found\n", rest[2])
		return 1
	}
	if *verbose {
		log.Errorf("%s %s failed: %s", rest[0], cmd, err)
		return 1
	}
	fmt.Fprintf(stderr, "error: %s\n", err)
	return 1
}

func runCommand(conf *config, path string, args []string, stdout io.Writer) (err error) {
	opts := kvstore.DefaultOptions()
	opts.SyncWrite = conf.syncWrite
	opts.SnapshotCompression = conf.compression
	s, err := kvstore.Open(path, opts)
	if err != nil {
		return err
	}
	defer func() {
		if errClose := s.Close(); err == nil {
			err = errClose
		}
	}()

	rebuilt := true
	if conf.indexMode == "snapshot" {
		restored, err := s.LoadSnapshot()
		if err != nil {
			return err
		}
		rebuilt = !restored
	} else if err = s.Load(); err != nil {
		return err
	}

	mutated := false
	switch args[0] {
	case "get":
		v, err := s.Get([]byte(args[1]))
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s\n", v)
	case "insert":
		err = s.Insert([]byte(args[1]), []byte(args[2]))
		mutated = true
	case "update":
		err = s.Update([]byte(args[1]), []byte(args[2]))
		mutated = true
	case "delete":
		err = s.Delete([]byte(args[1]))
		mutated = true
	case "keys":
		for _, k := range s.Keys() {
			fmt.Fprintf(stdout, "%s\n", k)
		}
	case "stats":
		st := s.Stats()
		fmt.Fprintf(stdout, "path:    %s\n", st.Path)
		fmt.Fprintf(stdout, "size:    %s (%s bytes)\n", humanize.Bytes(uint64(st.Size)), humanize.Comma(st.Size))
		fmt.Fprintf(stdout, "records: %s\n", humanize.Comma(int64(st.Records)))
		fmt.Fprintf(stdout, "keys:    %s\n", humanize.Comma(int64(st.Keys)))
	}
	if err != nil {
		return err
	}

	if conf.indexMode == "snapshot" && (mutated || rebuilt) && !s.SnapshotIsCurrent() {
		return s.PersistIndex()
	}
	return nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
