// Package gitio provides the Git plumbing for release analysis and
// tagging, built on go-git.
package gitio

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

// Commit is the slice of git commit data the analyzer consumes.
type Commit struct {
	Hash    string
	Message string
	Author  string
	When    time.Time
	// Files are the paths changed relative to the first parent
	// (all tree paths for a root commit).
	Files []string
	// Merge marks commits with more than one parent.
	Merge bool
}

// Tag is a repository tag pointing at a commit.
type Tag struct {
	Name string
	Hash string
}

// Repository wraps a go-git repository.
type Repository struct {
	repo *git.Repository
	path string
}

// Open opens an existing Git repository.
func Open(repoPath string) (*Repository, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return nil, fmt.Errorf("opening repository: %w", err)
	}
	return &Repository{repo: repo, path: repoPath}, nil
}

// Head returns the current HEAD commit hash.
func (r *Repository) Head() (string, error) {
	ref, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolving HEAD: %w", err)
	}
	return ref.Hash().String(), nil
}

// IsClean reports whether the worktree has no uncommitted changes.
func (r *Repository) IsClean() (bool, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("getting worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return false, fmt.Errorf("getting status: %w", err)
	}
	return status.IsClean(), nil
}

// Tags returns all tags, annotated ones resolved to their target
// commit, sorted by name.
func (r *Repository) Tags() ([]Tag, error) {
	iter, err := r.repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}

	var tags []Tag
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		hash := ref.Hash()
		if obj, err := r.repo.TagObject(hash); err == nil {
			hash = obj.Target
		}
		tags = append(tags, Tag{
			Name: ref.Name().Short(),
			Hash: hash.String(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
	return tags, nil
}

// HasTag reports whether a tag with the given name exists.
func (r *Repository) HasTag(name string) (bool, error) {
	_, err := r.repo.Reference(plumbing.NewTagReferenceName(name), true)
	if err == plumbing.ErrReferenceNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("resolving tag %s: %w", name, err)
	}
	return true, nil
}

// CommitsSince returns the commits reachable from HEAD but not from
// sinceHash, newest first. An empty sinceHash returns the full history.
// Changed file paths are computed against the first parent.
func (r *Repository) CommitsSince(sinceHash string) ([]Commit, error) {
	head, err := r.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolving HEAD: %w", err)
	}

	iter, err := r.repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("walking log: %w", err)
	}

	var commits []Commit
	err = iter.ForEach(func(c *object.Commit) error {
		if sinceHash != "" && c.Hash.String() == sinceHash {
			return storer.ErrStop
		}
		files, err := changedFiles(c)
		if err != nil {
			return fmt.Errorf("diffing %s: %w", c.Hash, err)
		}
		commits = append(commits, Commit{
			Hash:    c.Hash.String(),
			Message: c.Message,
			Author:  c.Author.Name,
			When:    c.Author.When,
			Files:   files,
			Merge:   c.NumParents() > 1,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return commits, nil
}

// changedFiles lists paths changed relative to the first parent.
func changedFiles(c *object.Commit) ([]string, error) {
	tree, err := c.Tree()
	if err != nil {
		return nil, err
	}

	if c.NumParents() == 0 {
		var files []string
		err := tree.Files().ForEach(func(f *object.File) error {
			files = append(files, f.Name)
			return nil
		})
		return files, err
	}

	parent, err := c.Parent(0)
	if err != nil {
		return nil, err
	}
	parentTree, err := parent.Tree()
	if err != nil {
		return nil, err
	}

	changes, err := parentTree.Diff(tree)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var files []string
	for _, change := range changes {
		for _, name := range []string{change.From.Name, change.To.Name} {
			if name != "" && !seen[name] {
				seen[name] = true
				files = append(files, name)
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

// CreateTag creates an annotated tag at HEAD.
func (r *Repository) CreateTag(name, message string) error {
	head, err := r.repo.Head()
	if err != nil {
		return fmt.Errorf("resolving HEAD: %w", err)
	}

	_, err = r.repo.CreateTag(name, head.Hash(), &git.CreateTagOptions{
		Message: message,
		Tagger:  signature(),
	})
	if err != nil {
		return fmt.Errorf("creating tag %s: %w", name, err)
	}
	return nil
}

// CommitPaths stages the given paths and commits them.
func (r *Repository) CommitPaths(paths []string, message string) (string, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("getting worktree: %w", err)
	}
	for _, p := range paths {
		if _, err := wt.Add(p); err != nil {
			return "", fmt.Errorf("staging %s: %w", p, err)
		}
	}
	hash, err := wt.Commit(message, &git.CommitOptions{Author: signature()})
	if err != nil {
		return "", fmt.Errorf("committing: %w", err)
	}
	return hash.String(), nil
}

func signature() *object.Signature {
	return &object.Signature{
		Name:  "relkit",
		Email: "relkit@localhost",
		When:  time.Now(),
	}
}

// FirstLine returns the first line of a commit message.
func FirstLine(message string) string {
	if i := strings.IndexByte(message, '\n'); i >= 0 {
		return strings.TrimRight(message[:i], "\r")
	}
	return message
}
