package workspace

import (
	git "github.com/go-git/go-git/v5"
)

// HeadCommit returns the abbreviated HEAD commit of the repository containing
// root, if any. Best-effort: workspaces outside version control, bare repos
// and detached states without a resolvable HEAD all report ok=false.
func HeadCommit(root string) (commit string, ok bool) {
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", false
	}
	head, err := repo.Head()
	if err != nil {
		return "", false
	}
	return head.Hash().String()[:12], true
}
