package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/radlabel/radlabel/pkg/auth"
	"github.com/radlabel/radlabel/pkg/net"
	"github.com/urfave/cli/v2"
)

const datasetDirName = "datasets"

var (
	urlFlag = &cli.StringSliceFlag{
		Name:  "url",
		Usage: "File URL to download (can be specified multiple times)",
	}

	manifestFlag = &cli.StringFlag{
		Name:  "manifest",
		Usage: "URL of a JSON manifest listing the dataset files per split",
	}

	outDirFlag = &cli.StringFlag{
		Name:  "out",
		Usage: "Download directory (default: <home>/datasets)",
	}

	useAuthFlag = &cli.BoolFlag{
		Name:  "auth",
		Usage: "Send the saved mirror token as a bearer credential",
	}

	fetchCmd = &cli.Command{
		Name:    "fetch",
		Aliases: []string{"f"},
		Usage:   "Download dataset files from a mirror",
		UsageText: `radlabel fetch --manifest https://mirror.example.com/openi/manifest.json
   radlabel fetch --url https://mirror.example.com/openi/train.csv --auth`,
		Action: cmdFetch,
		Flags: []cli.Flag{
			urlFlag,
			manifestFlag,
			outDirFlag,
			useAuthFlag,
		},
	}
)

// Manifest is a mirror's JSON index of dataset files. Split URLs may
// be relative to the manifest's own location.
type Manifest struct {
	Name   string            `json:"name"`
	Splits map[string]string `json:"splits"`
}

type FetchResult struct {
	Files    []string `json:"files"`
	Duration string   `json:"duration"`
}

func cmdFetch(c *cli.Context) error {
	start := time.Now()
	urls := c.StringSlice(urlFlag.Name)
	manifestURL := c.String(manifestFlag.Name)

	if len(urls) == 0 && manifestURL == "" {
		return cli.ShowSubcommandHelp(c)
	}

	cfg := getConfig(c)
	ctx := context.Background()

	outDir := c.String(outDirFlag.Name)
	if outDir == "" {
		outDir = path.Join(cfg.HomeDir, datasetDirName)
	}
	if err := os.MkdirAll(outDir, dirMode); err != nil {
		return fmt.Errorf("creating download dir %s: %w", outDir, err)
	}

	client, err := net.GetHTTPClient()
	if err != nil {
		return fmt.Errorf("creating HTTP client: %w", err)
	}
	if c.Bool(useAuthFlag.Name) {
		token, err := auth.NewStore(cfg.HomeDir).Get()
		if err != nil {
			return fmt.Errorf("loading token: %w", err)
		}
		client = net.GetOAuthClient(ctx, token)
	}

	if manifestURL != "" {
		manifestURLs, err := fetchManifest(ctx, client, manifestURL)
		if err != nil {
			return err
		}
		urls = append(urls, manifestURLs...)
	}

	res := &FetchResult{
		Files: make([]string, 0, len(urls)),
	}

	for _, u := range urls {
		dest, err := downloadTo(ctx, client, u, outDir)
		if err != nil {
			return err
		}
		res.Files = append(res.Files, dest)
	}

	res.Duration = time.Since(start).String()

	if err := encode(res); err != nil {
		return fmt.Errorf("error encoding result: %w", err)
	}

	return nil
}

func fetchManifest(ctx context.Context, client *http.Client, manifestURL string) ([]string, error) {
	base, err := url.Parse(manifestURL)
	if err != nil {
		return nil, fmt.Errorf("bad manifest URL %s: %w", manifestURL, err)
	}

	var m Manifest
	if err := net.GetJSON(ctx, client, manifestURL, &m); err != nil {
		return nil, fmt.Errorf("loading manifest: %w", err)
	}
	if len(m.Splits) == 0 {
		return nil, fmt.Errorf("manifest %s lists no files", manifestURL)
	}

	slog.Info("manifest loaded", "name", m.Name, "files", len(m.Splits))

	// deterministic download order
	splits := make([]string, 0, len(m.Splits))
	for s := range m.Splits {
		splits = append(splits, s)
	}
	sort.Strings(splits)

	urls := make([]string, 0, len(splits))
	for _, s := range splits {
		ref, err := url.Parse(m.Splits[s])
		if err != nil {
			return nil, fmt.Errorf("bad URL for split %s: %w", s, err)
		}
		urls = append(urls, base.ResolveReference(ref).String())
	}

	return urls, nil
}

func downloadTo(ctx context.Context, client *http.Client, fileURL, outDir string) (string, error) {
	parsed, err := url.Parse(fileURL)
	if err != nil {
		return "", fmt.Errorf("bad URL %s: %w", fileURL, err)
	}

	name := path.Base(parsed.Path)
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("cannot derive a file name from %s", fileURL)
	}

	dest := filepath.Join(outDir, name)
	slog.Info("downloading", "url", fileURL, "to", dest)

	if err := net.Download(ctx, client, fileURL, dest); err != nil {
		return "", fmt.Errorf("downloading %s: %w", fileURL, err)
	}

	return dest, nil
}
