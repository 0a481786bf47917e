// ftpscan inventories a remote FTP tree without transferring anything.
// It walks every directory under FTP_ROOT, optionally records what it
// sees into the catalog, and reports counts and timing.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/ferryline/photoferry/catalog"
	"github.com/ferryline/photoferry/config"
	"github.com/ferryline/photoferry/source"
)

func main() {
	var (
		dump    = flag.Bool("dump", false, "Print every discovered file")
		prune   = flag.Bool("prune", false, "Drop catalog entries not seen by this scan")
		topDirs = flag.Int("top-dirs", 0, "Print the N directories holding the most bytes")
	)
	flag.Parse()

	ctx := context.Background()

	// Creating configuration from ENV
	ftpCfg := &config.FTPConfig{
		Host:     os.Getenv("FTP_HOST"),
		Port:     mustGetEnvInt("FTP_PORT", 21),
		Username: os.Getenv("FTP_USERNAME"),
		Password: os.Getenv("FTP_PASSWORD"),
		Root:     os.Getenv("FTP_ROOT"),
		UseTLS:   os.Getenv("FTP_USE_TLS") == "true",
	}

	commonCfg := &config.CommonSourceConfig{
		PoolSize:       mustGetEnvInt("SOURCE_POOL_SIZE", 2),
		TimeoutSeconds: mustGetEnvInt("SOURCE_TIMEOUT_SECONDS", 30),
		MaxRetries:     mustGetEnvInt("SOURCE_MAX_RETRIES", 3),
		MaxRPS:         mustGetEnvInt("SOURCE_MAX_RPS", 10),
	}

	src, err := source.NewFTPSource(ftpCfg, commonCfg, nil)
	if err != nil {
		log.Fatalf("Failed to create FTP source: %v", err)
	}
	defer src.Close()

	var cat *catalog.Catalog
	if path := os.Getenv("CATALOG_PATH"); path != "" {
		catCfg := &config.CatalogConfig{
			Path:   path,
			Bucket: os.Getenv("CATALOG_BUCKET"),
			NoSync: os.Getenv("CATALOG_NO_SYNC") == "true",
		}
		cat, err = catalog.Open(catCfg)
		if err != nil {
			log.Fatalf("Failed to open catalog: %v", err)
		}
		defer cat.Close()
	} else if *prune {
		log.Fatal("-prune requires CATALOG_PATH")
	}

	start := time.Now()

	var files, dirs int
	var totalBytes int64
	dirBytes := make(map[string]int64)
	dirFiles := make(map[string]int)

	stack := []string{ftpCfg.Root}
	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		dirs++

		entries, subdirs, err := src.List(ctx, dir)
		if err != nil {
			log.Printf("Skipping %s: %v", dir, err)
			continue
		}
		for i := len(subdirs) - 1; i >= 0; i-- {
			stack = append(stack, subdirs[i])
		}

		for _, e := range entries {
			files++
			totalBytes += e.Size
			dirBytes[e.Dir] += e.Size
			dirFiles[e.Dir]++
			if cat != nil {
				if err := cat.Observe(e); err != nil {
					log.Fatalf("Catalog update failed for %s: %v", e.Path, err)
				}
			}
			if *dump {
				fmt.Printf("%14d  %s\n", e.Size, e.Path)
			}
		}
	}

	fmt.Printf("Scanned %d directories, %d files, %d bytes in %s\n", dirs, files, totalBytes, time.Since(start))

	if *topDirs > 0 {
		ranked := make([]string, 0, len(dirBytes))
		for d := range dirBytes {
			ranked = append(ranked, d)
		}
		sort.Slice(ranked, func(i, j int) bool { return dirBytes[ranked[i]] > dirBytes[ranked[j]] })
		if len(ranked) > *topDirs {
			ranked = ranked[:*topDirs]
		}
		for _, d := range ranked {
			fmt.Printf("%14d  %6d files  %s\n", dirBytes[d], dirFiles[d], d)
		}
	}

	if cat != nil {
		if *prune {
			removed, err := cat.Prune(start)
			if err != nil {
				log.Fatalf("Prune failed: %v", err)
			}
			fmt.Printf("Pruned %d entries no longer on the server\n", removed)
		}
		count, err := cat.Count()
		if err != nil {
			log.Fatalf("Catalog count failed: %v", err)
		}
		fmt.Printf("Catalog holds %d entries\n", count)
	}
}

// mustGetEnvInt tries to parse an environment variable as int, returns default if not set or invalid
func mustGetEnvInt(key string, def int) int {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		log.Printf("Invalid int value for %s: %v. Using default: %d", key, err, def)
		return def
	}
	return i
}
