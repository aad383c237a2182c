package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fclairamb/gallerystore/internal/assets"
	"github.com/fclairamb/gallerystore/internal/catalog"
	"github.com/fclairamb/gallerystore/internal/gallery"
	"github.com/fclairamb/gallerystore/internal/history"
)

// Binary size units for formatBytes.
const bytesPerUnit = 1024

// displayStats displays the storage statistics.
//
//nolint:forbidigo // CLI user output function
func displayStats(root string, stats assets.Stats) {
	fmt.Printf("Storage: %s\n", root)
	fmt.Printf("  Galleries: %d\n", stats.GalleriesCount)
	fmt.Printf("  Files:     %d\n", stats.TotalFiles)
	fmt.Printf("  Size:      %s (%d bytes)\n", formatBytes(stats.TotalSize), stats.TotalSize)
}

// displayCatalogSummary displays the catalog counts and where they came from.
//
//nolint:forbidigo // CLI user output function
func displayCatalogSummary(path string, result catalog.LoadResult) {
	fmt.Printf("Catalog: %s\n", path)
	switch result.Source {
	case catalog.SourceDefault:
		fmt.Println("  Source:    none yet (empty catalog)")
	case catalog.SourceDegraded:
		fmt.Printf("  Source:    UNREADABLE (%v)\n", result.Err)
	case catalog.SourceFile:
		fmt.Println("  Source:    file")
	}
	fmt.Printf("  Galleries: %d\n", len(result.Document.Galleries))
	fmt.Printf("  Artworks:  %d\n", len(result.Document.Artworks))
	fmt.Printf("  Users:     %d\n", len(result.Document.Users))
}

// displayJSON prints a value as indented JSON on stdout.
func displayJSON(value any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(value); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

// displayRemoveResult displays the result of a gallery removal.
//
//nolint:forbidigo // CLI user output function
func displayRemoveResult(result gallery.RemoveResult) {
	fmt.Printf("\nRemoved gallery %s", result.GalleryID)
	if result.GalleryName != "" {
		fmt.Printf(" (%s)", result.GalleryName)
	}
	fmt.Println()
	fmt.Printf("  Artworks removed: %d\n", result.ArtworksRemoved)

	if result.AssetsRemoved {
		fmt.Println("  Upload directory: deleted")
	} else {
		fmt.Println("  Upload directory: NOT deleted, run 'reconcile --prune' to clean it up")
	}
}

// displayReconcileReport displays the results of a reconcile pass.
//
//nolint:forbidigo // CLI user output function
func displayReconcileReport(report gallery.Report) {
	fmt.Printf("\nReconcile Results:\n")
	fmt.Printf("  Orphaned directories found: %d\n", len(report.Orphans))
	for _, dir := range report.Orphans {
		fmt.Printf("    - %s\n", dir)
	}
	if len(report.Recent) > 0 {
		fmt.Printf("  Recently modified, kept: %s\n", strings.Join(report.Recent, ", "))
	}

	if !report.Pruned {
		if len(report.Orphans) > 0 {
			fmt.Printf("\nDry run - no changes were made. Use --prune to delete them.\n")
		}
		return
	}

	fmt.Printf("  Directories deleted: %d\n", len(report.Removed))
	if len(report.Failed) > 0 {
		fmt.Printf("  Directories that could not be deleted: %s\n", strings.Join(report.Failed, ", "))
	}
}

// displayHistory displays catalog revisions.
//
//nolint:forbidigo // CLI user output function
func displayHistory(entries []history.Entry) {
	if len(entries) == 0 {
		fmt.Println("No catalog revisions recorded yet.")
		return
	}

	for _, entry := range entries {
		hash := entry.Hash
		if len(hash) > 8 {
			hash = hash[:8]
		}
		fmt.Printf("%s  %-16s  %-12s  %s\n",
			hash,
			formatTimeSince(entry.When),
			entry.Author,
			strings.TrimSpace(entry.Message))
	}
}

// displayRemoteConfig displays the history remote configuration.
//
//nolint:forbidigo // CLI user output function
func displayRemoteConfig(cfg *history.RemoteConfig, enabled bool) {
	fmt.Println("Catalog History Configuration")
	fmt.Println()

	if !enabled {
		fmt.Println("History:  disabled (set GLS_HISTORY=true to enable)")
	} else {
		fmt.Println("History:  enabled")
	}

	if cfg.URL == "" {
		fmt.Println("\nRemote: not configured (set GLS_GIT_URL to enable)")
		return
	}

	fmt.Printf("URL:      %s\n", cfg.URL)
	if cfg.IsSSH() {
		fmt.Println("Auth:     SSH (using ssh-agent)")
	} else {
		if cfg.Password != "" {
			fmt.Println("Auth:     HTTPS (token configured)")
		} else {
			fmt.Println("Auth:     HTTPS (WARNING: GLS_GIT_PASS not set)")
		}
	}
	fmt.Printf("Branch:   %s\n", cfg.Branch)
	fmt.Printf("User:     %s\n", cfg.User)
	fmt.Printf("Email:    %s\n", cfg.Email)
	fmt.Printf("Push:     %t\n", cfg.IsPushEnabled())
}

// displayConnectionTest tests the connection and displays the result.
//
//nolint:forbidigo // CLI user output function
func displayConnectionTest(ctx context.Context, cfg *history.RemoteConfig) error {
	fmt.Printf("Testing connection to %s...\n", cfg.URL)

	if testErr := cfg.TestConnection(ctx); testErr != nil {
		return fmt.Errorf("connection test failed: %w", testErr)
	}

	fmt.Println("Connection successful!")
	return nil
}

// formatBytes formats a size with binary units.
func formatBytes(size int64) string {
	if size < bytesPerUnit {
		return fmt.Sprintf("%d B", size)
	}

	value := float64(size)
	units := []string{"KiB", "MiB", "GiB", "TiB"}
	unit := ""
	for _, u := range units {
		value /= bytesPerUnit
		unit = u
		if value < bytesPerUnit {
			break
		}
	}
	return fmt.Sprintf("%.1f %s", value, unit)
}

// formatTimeSince formats a time duration in a human-readable way.
func formatTimeSince(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	duration := time.Since(t)

	switch {
	case duration < time.Minute:
		return "just now"
	case duration < time.Hour:
		minutes := int(duration.Minutes())
		if minutes == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", minutes)
	case duration < hoursPerDay*time.Hour:
		hours := int(duration.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case duration < daysPerWeek*hoursPerDay*time.Hour:
		days := int(duration.Hours() / hoursPerDay)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	case duration < daysPerMonth*hoursPerDay*time.Hour:
		weeks := int(duration.Hours() / hoursPerDay / daysPerWeek)
		if weeks == 1 {
			return "1 week ago"
		}
		return fmt.Sprintf("%d weeks ago", weeks)
	default:
		months := int(duration.Hours() / hoursPerDay / daysPerMonth)
		if months == 1 {
			return "1 month ago"
		}
		return fmt.Sprintf("%d months ago", months)
	}
}
