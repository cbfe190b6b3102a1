package cube

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/wyfcoding/riskengine/config"
	"github.com/wyfcoding/riskengine/logging"
	"github.com/wyfcoding/riskengine/storage"
	"github.com/wyfcoding/riskengine/xerrors"
)

const fileSuffix = ".cube.gz"

// Store 立方体持久化接口。
type Store interface {
	Save(ctx context.Context, name string, c NPVCube) error
	Load(ctx context.Context, name string) (NPVCube, error)
	List(ctx context.Context) ([]string, error)
}

// FileStore 将立方体保存为本地目录下的 <name>.cube.gz 文件。
type FileStore struct {
	dir string
}

// NewFileStore 目录不存在时创建。
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, xerrors.Wrap(err, xerrors.ErrConfiguration, "create cube dir "+dir)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name+fileSuffix)
}

func (s *FileStore) Save(_ context.Context, name string, c NPVCube) error {
	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return xerrors.Wrap(err, xerrors.ErrInternal, "save cube "+name)
	}
	defer os.Remove(tmp.Name())
	if err := Encode(tmp, c); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return xerrors.Wrap(err, xerrors.ErrInternal, "save cube "+name)
	}
	return os.Rename(tmp.Name(), s.path(name))
}

func (s *FileStore) Load(_ context.Context, name string) (NPVCube, error) {
	f, err := os.Open(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, xerrors.New(xerrors.ErrNotFound, 404, "cube not found", name, err)
		}
		return nil, xerrors.Wrap(err, xerrors.ErrInternal, "load cube "+name)
	}
	defer f.Close()
	return Decode(f)
}

func (s *FileStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.ErrInternal, "list cubes")
	}
	var names []string
	for _, e := range entries {
		if n, ok := strings.CutSuffix(e.Name(), fileSuffix); ok && !e.IsDir() {
			names = append(names, n)
		}
	}
	slices.Sort(names)
	return names, nil
}

// ObjectStore 将立方体归档到对象存储，对象名为 <prefix><name>.cube.gz。
type ObjectStore struct {
	backend storage.Storage
	prefix  string
	logger  *logging.Logger
}

func NewObjectStore(backend storage.Storage, prefix string, logger *logging.Logger) *ObjectStore {
	return &ObjectStore{backend: backend, prefix: prefix, logger: logging.Component(logger, "cube-store")}
}

func (s *ObjectStore) object(name string) string { return s.prefix + name + fileSuffix }

func (s *ObjectStore) Save(ctx context.Context, name string, c NPVCube) error {
	var buf bytes.Buffer
	if err := Encode(&buf, c); err != nil {
		return err
	}
	size := buf.Len()
	if err := s.backend.Upload(ctx, s.object(name), &buf, int64(size), "application/gzip"); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "cube archived", "name", name, "bytes", size, "ids", c.NumIDs(), "dates", c.NumDates(), "samples", c.Samples())
	return nil
}

func (s *ObjectStore) Load(ctx context.Context, name string) (NPVCube, error) {
	ok, err := s.backend.Exists(ctx, s.object(name))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, xerrors.New(xerrors.ErrNotFound, 404, "cube not found", name, nil)
	}
	rc, err := s.backend.Download(ctx, s.object(name))
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return Decode(rc)
}

func (s *ObjectStore) List(ctx context.Context) ([]string, error) {
	objects, err := s.backend.List(ctx, s.prefix)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, o := range objects {
		if n, ok := strings.CutSuffix(strings.TrimPrefix(o, s.prefix), fileSuffix); ok {
			names = append(names, n)
		}
	}
	return names, nil
}

// NewStore 按配置选择文件或对象存储；minio 模式下 backend 不能为空。
func NewStore(cfg config.CubeConfig, backend storage.Storage, logger *logging.Logger) (Store, error) {
	switch cfg.Store {
	case "", "file":
		dir := cfg.Dir
		if dir == "" {
			dir = "cubes"
		}
		fs, err := NewFileStore(dir)
		if err != nil {
			return nil, err
		}
		return fs, nil
	case "minio":
		if backend == nil {
			return nil, xerrors.Configuration("cube store %q requires an object storage backend", cfg.Store)
		}
		return NewObjectStore(backend, cfg.Prefix, logger), nil
	default:
		return nil, xerrors.Configuration("unknown cube store %q", cfg.Store)
	}
}
