package config

import "maps"

// SiteConfig holds crawl settings for a single host.
type SiteConfig struct {
	// Cookie is sent with every request to the site.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty" toml:"cookie"`

	// Headers are extra HTTP headers sent to the site.
	Headers map[string]string `yaml:"headers,omitempty" toml:"headers"`

	// MaxPages overrides the global page budget. Zero keeps the global value.
	MaxPages int `yaml:"maxPages,omitempty" toml:"maxPages"`

	// IgnorePatterns are glob patterns on the URL path; matching links are skipped.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty" toml:"ignorePatterns"`

	// FollowPatterns, if set, restrict crawling to matching paths.
	FollowPatterns []string `yaml:"followPatterns,omitempty" toml:"followPatterns"`

	// IncludeSubdomains overrides the global subdomain policy when set.
	IncludeSubdomains *bool `yaml:"includeSubdomains,omitempty" toml:"includeSubdomains"`
}

// File represents the structure of the pcrawl configuration file.
type File struct {
	// Sites maps hosts ("example.com", "example.com:8080") to their settings.
	Sites map[string]SiteConfig `yaml:"sites,omitempty" toml:"sites"`

	// Defaults apply to every site unless overridden.
	Defaults SiteConfig `yaml:"defaults,omitempty" toml:"defaults"`
}

// GetSiteConfig returns the configuration for host, merged over the defaults.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	result := cf.Defaults
	if cf.Defaults.Headers != nil {
		result.Headers = maps.Clone(cf.Defaults.Headers)
	}

	site, ok := cf.Sites[host]
	if !ok {
		return result
	}

	if site.Cookie != "" {
		result.Cookie = site.Cookie
	}
	if site.MaxPages != 0 {
		result.MaxPages = site.MaxPages
	}
	if len(site.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string, len(site.Headers))
		}
		maps.Copy(result.Headers, site.Headers)
	}
	if len(site.IgnorePatterns) > 0 {
		result.IgnorePatterns = site.IgnorePatterns
	}
	if len(site.FollowPatterns) > 0 {
		result.FollowPatterns = site.FollowPatterns
	}
	if site.IncludeSubdomains != nil {
		result.IncludeSubdomains = site.IncludeSubdomains
	}
	return result
}
