// Command firepanel-explore navigates the database tree from the terminal:
// it restores the last path (or takes one as an argument), lists the node's
// children through the backend callables, and persists the new position.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"firepanel/apiclient"
	"firepanel/localstate"
	"firepanel/treecache"

	"github.com/golang/glog"
)

var (
	apiBase     = flag.String("api", "", "Base URL of the firepanel backend.")
	idToken     = flag.String("id-token", "", "Firebase ID token of an admin user.")
	dataProject = flag.String("data-project", "", "Project ID; namespaces the persisted navigation state.")
	stateDir    = flag.String("state-dir", "", "Directory for persisted browser state. Defaults to ~/.firepanel.")
)

func main() {
	flag.Parse()

	if err := do(context.Background(), flag.Arg(0)); err != nil {
		glog.Exitf("Error: %v", err)
	}
}

func do(ctx context.Context, arg string) error {
	if *apiBase == "" || *idToken == "" || *dataProject == "" {
		return fmt.Errorf("--api, --id-token, and --data-project are required")
	}

	dir := *stateDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("while locating home directory: %w", err)
		}
		dir = filepath.Join(home, ".firepanel")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("while creating state directory: %w", err)
	}

	store, err := localstate.Open(dir)
	if err != nil {
		return err
	}
	defer store.Close()

	cache := treecache.New(apiclient.New(*apiBase, *idToken))
	cursor := treecache.NewCursor(cache, store, *dataProject)

	path := arg
	if path == "" {
		path = cursor.Path()
	}

	if err := cursor.SetPath(ctx, path); err != nil {
		return fmt.Errorf("while navigating to %q: %w", path, err)
	}

	node, ok := cache.Node(cursor.Path())
	if !ok {
		return fmt.Errorf("no node cached for %q", cursor.Path())
	}

	if cursor.Path() == "" {
		fmt.Println("/")
	} else {
		fmt.Printf("/%s (%s)\n", node.Ref.Path, node.Ref.Kind)
	}
	for _, child := range node.Children {
		fmt.Printf("  %s (%s)\n", child.Path, child.Kind)
	}
	if len(node.Children) == 0 {
		fmt.Println("  (no children)")
	}

	return nil
}
