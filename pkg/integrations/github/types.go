package github

// License is the license GitHub detected for a repository.
type License struct {
	SPDXID  string `json:"spdx_id"`           // e.g. "MIT", or "NOASSERTION" when GitHub could not classify it
	Name    string `json:"name,omitempty"`    // e.g. "MIT License"
	Content string `json:"content,omitempty"` // decoded license file text
}

// NoAssertion is the spdx_id GitHub reports for license files it cannot classify.
const NoAssertion = "NOASSERTION"

type licenseResponse struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
	License  struct {
		SPDXID string `json:"spdx_id"`
		Name   string `json:"name"`
	} `json:"license"`
}

type searchResponse struct {
	Items []struct {
		Name  string `json:"name"`
		Owner struct {
			Login string `json:"login"`
		} `json:"owner"`
	} `json:"items"`
}

type searchResult struct {
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
	Found bool   `json:"found"`
}
