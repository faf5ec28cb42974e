package tools

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ResourceRoot 是缓存文件对外暴露的 URI 前缀，其后依次为数据集分类与文件名。
const ResourceRoot = "resource://mlit/"

const (
	kindTransactionPoints  = "transaction_points"
	kindUrbanPlanningZones = "urban_planning_zones"
	kindSchoolDistricts    = "school_districts"
)

// kindCacheFiles 用于 List，缓存文件本身不记录来源数据集。
const kindCacheFiles = "files"

const (
	geoJSONMimeType = "application/geo+json"
	pbfMimeType     = "application/vnd.mapbox-vector-tile"
)

var resourceKinds = map[string]struct{}{
	kindTransactionPoints:  {},
	kindUrbanPlanningZones: {},
	kindSchoolDistricts:    {},
	kindCacheFiles:         {},
}

// ErrResourceNotFound 表示 URI 不指向缓存目录中的文件。
var ErrResourceNotFound = errors.New("resource not found")

// Resource 描述一个可读取的缓存文件。
type Resource struct {
	URI      string `json:"uri"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

// IsText 报告资源内容能否按文本返回。
func (r Resource) IsText() bool {
	return r.MimeType == geoJSONMimeType
}

// ResourceURI 拼出某个分类下缓存文件的 URI。
func ResourceURI(kind, name string) string {
	return ResourceRoot + kind + "/" + name
}

// ResourceStore 将文件缓存目录中的 *.geojson 与 *.pbf 暴露为资源，读取被限制在该目录内。
type ResourceStore struct {
	dir string
}

// NewResourceStore 基于文件缓存目录创建资源视图。
func NewResourceStore(dir string) *ResourceStore {
	return &ResourceStore{dir: filepath.Clean(dir)}
}

// URIFor 返回缓存文件在 kind 分类下的资源 URI。
func (s *ResourceStore) URIFor(kind, path string) (string, error) {
	if _, ok := resourceKinds[kind]; !ok {
		return "", fmt.Errorf("unknown resource kind %q", kind)
	}
	if filepath.Dir(filepath.Clean(path)) != s.dir {
		return "", fmt.Errorf("%s is outside the cache directory", path)
	}
	name := filepath.Base(path)
	if mimeTypeOf(name) == "" {
		return "", fmt.Errorf("%s is not a servable resource", name)
	}
	return ResourceURI(kind, name), nil
}

// List 返回按名称排序的资源列表。
func (s *ResourceStore) List() ([]Resource, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list cache dir: %w", err)
	}
	resources := make([]Resource, 0, len(entries))
	for _, entry := range entries {
		mimeType := mimeTypeOf(entry.Name())
		if entry.IsDir() || mimeType == "" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		resources = append(resources, Resource{
			URI:      ResourceURI(kindCacheFiles, entry.Name()),
			Name:     entry.Name(),
			MimeType: mimeType,
			Size:     info.Size(),
		})
	}
	sort.Slice(resources, func(i, j int) bool { return resources[i].Name < resources[j].Name })
	return resources, nil
}

// Read 读取资源内容。
func (s *ResourceStore) Read(uri string) (Resource, []byte, error) {
	rest, ok := strings.CutPrefix(uri, ResourceRoot)
	if !ok {
		return Resource{}, nil, fmt.Errorf("%w: %s", ErrResourceNotFound, uri)
	}
	kind, name, ok := strings.Cut(rest, "/")
	if _, known := resourceKinds[kind]; !ok || !known {
		return Resource{}, nil, fmt.Errorf("%w: %s", ErrResourceNotFound, uri)
	}
	mimeType := mimeTypeOf(name)
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") || mimeType == "" {
		return Resource{}, nil, fmt.Errorf("%w: %s", ErrResourceNotFound, uri)
	}
	content, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Resource{}, nil, fmt.Errorf("%w: %s", ErrResourceNotFound, uri)
		}
		return Resource{}, nil, fmt.Errorf("read resource: %w", err)
	}
	return Resource{
		URI:      uri,
		Name:     name,
		MimeType: mimeType,
		Size:     int64(len(content)),
	}, content, nil
}

func mimeTypeOf(name string) string {
	switch filepath.Ext(name) {
	case ".geojson":
		return geoJSONMimeType
	case ".pbf":
		return pbfMimeType
	default:
		return ""
	}
}
