package registry

import (
	"sync"

	"github.com/emiliensocchi/aztop/pkg/azure"
)

// Entry holds a registered module. Exactly one of Resource or Directory is
// set, depending on which plane the module enumerates.
type Entry struct {
	Resource  azure.ResourceModule
	Directory azure.DirectoryModule
	Platform  string
	Category  string
}

type ModuleRegistry struct {
	mu        sync.RWMutex
	modules   map[string]Entry               // name -> module mapping
	hierarchy map[string]map[string][]string // platform -> category -> []name
}

var Registry = &ModuleRegistry{
	modules:   make(map[string]Entry),
	hierarchy: make(map[string]map[string][]string),
}

// RegisterResource adds a management-plane module under its metadata's
// platform and category. Called from module init functions.
func RegisterResource(module azure.ResourceModule) {
	md := module.Metadata()
	register(string(md.Platform), md.Category, md.Name, Entry{
		Resource: module,
		Platform: string(md.Platform),
		Category: md.Category,
	})
}

// RegisterDirectory adds a directory-plane module under its metadata's
// platform and category. Called from module init functions.
func RegisterDirectory(module azure.DirectoryModule) {
	md := module.Metadata()
	register(string(md.Platform), md.Category, md.Name, Entry{
		Directory: module,
		Platform:  string(md.Platform),
		Category:  md.Category,
	})
}

func register(platform, category, name string, entry Entry) {
	Registry.mu.Lock()
	defer Registry.mu.Unlock()

	Registry.modules[name] = entry

	if _, exists := Registry.hierarchy[platform]; !exists {
		Registry.hierarchy[platform] = make(map[string][]string)
	}
	Registry.hierarchy[platform][category] = append(Registry.hierarchy[platform][category], name)
}

// GetEntry gets the full entry for a module by name
func GetEntry(name string) (Entry, bool) {
	Registry.mu.RLock()
	defer Registry.mu.RUnlock()

	entry, exists := Registry.modules[name]
	return entry, exists
}

// ResourceModules retrieves all management-plane modules for a platform
func ResourceModules(platform string) []azure.ResourceModule {
	Registry.mu.RLock()
	defer Registry.mu.RUnlock()

	var modules []azure.ResourceModule
	if categoryMap, exists := Registry.hierarchy[platform]; exists {
		for _, names := range categoryMap {
			for _, name := range names {
				if entry := Registry.modules[name]; entry.Resource != nil {
					modules = append(modules, entry.Resource)
				}
			}
		}
	}
	return modules
}

// DirectoryModules retrieves all directory-plane modules for a platform
func DirectoryModules(platform string) []azure.DirectoryModule {
	Registry.mu.RLock()
	defer Registry.mu.RUnlock()

	var modules []azure.DirectoryModule
	if categoryMap, exists := Registry.hierarchy[platform]; exists {
		for _, names := range categoryMap {
			for _, name := range names {
				if entry := Registry.modules[name]; entry.Directory != nil {
					modules = append(modules, entry.Directory)
				}
			}
		}
	}
	return modules
}

// GetHierarchy exposes the platform -> category -> module names tree for
// CLI generation
func GetHierarchy() map[string]map[string][]string {
	Registry.mu.RLock()
	defer Registry.mu.RUnlock()

	// Return a copy to prevent modification of the original
	result := make(map[string]map[string][]string)
	for platform, categories := range Registry.hierarchy {
		result[platform] = make(map[string][]string)
		for category, modules := range categories {
			result[platform][category] = append([]string{}, modules...)
		}
	}
	return result
}
