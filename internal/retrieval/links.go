package retrieval

import (
	"net/url"
	"strings"

	"github.com/MohamedBiize/DocAI/internal/chunk"
)

var codeHosts = map[string]bool{
	"github.com":        true,
	"www.github.com":    true,
	"gitlab.com":        true,
	"www.gitlab.com":    true,
	"bitbucket.org":     true,
	"www.bitbucket.org": true,
}

// BuildLink returns the browsable URL of a code chunk, of the form
// {repo}/blob/{branch}/{github_link}. Only http(s) repositories on a public
// code host qualify; everything else has no link.
func BuildLink(md chunk.Metadata) (string, bool) {
	if md.String(chunk.KeySourceType) != string(chunk.SourceTypeCode) {
		return "", false
	}
	anchor := md.String(chunk.KeyGithubLink)
	repo := strings.TrimSpace(md.String(chunk.KeyRepoURL))
	if anchor == "" || repo == "" {
		return "", false
	}

	repo = strings.TrimSuffix(strings.TrimRight(repo, "/"), ".git")
	u, err := url.Parse(repo)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || !codeHosts[strings.ToLower(u.Hostname())] {
		return "", false
	}

	branch := md.String(chunk.KeyBranch)
	if branch == "" {
		branch = "main"
	}
	return repo + "/blob/" + branch + "/" + strings.TrimLeft(anchor, "/"), true
}
