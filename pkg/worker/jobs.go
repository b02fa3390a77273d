package worker

import (
	"context"
	"fmt"

	"github.com/driftbox/driftbox/pkg/content"
	"github.com/driftbox/driftbox/pkg/namespace"
	"github.com/driftbox/driftbox/pkg/vpath"
)

// Batch job names. The single-item pipeline jobs are named by the
// packages that enqueue them.
const (
	JobDeleteImmediatelyBatch = "delete_immediately_batch"
	JobEmptyTrash             = "empty_trash"
	JobMoveBatch              = "move_batch"
	JobMoveToTrashBatch       = "move_to_trash_batch"
)

// RegisterCoreJobs binds every background job of the core to the worker.
// Batch jobs capture per-item failures in the job result instead of
// failing the whole job.
func RegisterCoreJobs(w Worker, pipeline *content.Service, ns *namespace.Service) {
	w.Register(content.JobProcessFileContent, func(ctx context.Context, args map[string]any) (map[string]any, error) {
		fileID, err := stringArg(args, "file_id")
		if err != nil {
			return nil, err
		}
		return nil, pipeline.Process(ctx, fileID)
	})

	w.Register(content.JobGenerateThumbnails, func(ctx context.Context, args map[string]any) (map[string]any, error) {
		fileID, err := stringArg(args, "file_id")
		if err != nil {
			return nil, err
		}
		return nil, pipeline.GenerateThumbnails(ctx, fileID, intsArg(args, "sizes"))
	})

	w.Register(namespace.JobProcessPendingDeletion, func(ctx context.Context, args map[string]any) (map[string]any, error) {
		ids, err := stringsArg(args, "ids")
		if err != nil {
			return nil, err
		}
		removed, err := ns.Files().Core().ProcessFilePendingDeletion(ctx, ids)
		if err != nil {
			return nil, err
		}
		return map[string]any{"removed": len(removed)}, nil
	})

	w.Register(JobDeleteImmediatelyBatch, func(ctx context.Context, args map[string]any) (map[string]any, error) {
		nsPath, err := stringArg(args, "ns")
		if err != nil {
			return nil, err
		}
		paths, err := stringsArg(args, "paths")
		if err != nil {
			return nil, err
		}
		return nil, ns.DeleteBatch(ctx, nsPath, toVPaths(paths))
	})

	w.Register(JobEmptyTrash, func(ctx context.Context, args map[string]any) (map[string]any, error) {
		nsPath, err := stringArg(args, "ns")
		if err != nil {
			return nil, err
		}
		return nil, ns.EmptyTrash(ctx, nsPath)
	})

	w.Register(JobMoveBatch, func(ctx context.Context, args map[string]any) (map[string]any, error) {
		nsPath, err := stringArg(args, "ns")
		if err != nil {
			return nil, err
		}
		moves, err := movesArg(args)
		if err != nil {
			return nil, err
		}
		failures := map[string]any{}
		for _, mv := range moves {
			if _, err := ns.MoveItem(ctx, nsPath, mv.from, mv.to); err != nil {
				failures[mv.from.String()] = err.Error()
			}
		}
		return batchResult(len(moves), failures), nil
	})

	w.Register(JobMoveToTrashBatch, func(ctx context.Context, args map[string]any) (map[string]any, error) {
		nsPath, err := stringArg(args, "ns")
		if err != nil {
			return nil, err
		}
		paths, err := stringsArg(args, "paths")
		if err != nil {
			return nil, err
		}
		failures := map[string]any{}
		for _, p := range toVPaths(paths) {
			if _, err := ns.MoveItemToTrash(ctx, nsPath, p); err != nil {
				failures[p.String()] = err.Error()
			}
		}
		return batchResult(len(paths), failures), nil
	})
}

type move struct {
	from, to vpath.Path
}

func batchResult(total int, failures map[string]any) map[string]any {
	result := map[string]any{"processed": total - len(failures)}
	if len(failures) > 0 {
		result["errors"] = failures
	}
	return result
}

func toVPaths(raw []string) []vpath.Path {
	out := make([]vpath.Path, len(raw))
	for i, p := range raw {
		out[i] = vpath.New(p)
	}
	return out
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("missing or invalid argument %q", key)
	}
	return v, nil
}

// stringsArg accepts both []string and the []any produced by JSON
// round-tripping.
func stringsArg(args map[string]any, key string) ([]string, error) {
	switch v := args[key].(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("invalid element in argument %q", key)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("missing or invalid argument %q", key)
	}
}

// intsArg tolerates absent sizes; the thumbnail service falls back to
// its configured defaults.
func intsArg(args map[string]any, key string) []int {
	switch v := args[key].(type) {
	case []int:
		return v
	case []any:
		out := make([]int, 0, len(v))
		for _, e := range v {
			switch n := e.(type) {
			case float64:
				out = append(out, int(n))
			case int:
				out = append(out, n)
			}
		}
		return out
	default:
		return nil
	}
}

func movesArg(args map[string]any) ([]move, error) {
	raw, ok := args["moves"].([]any)
	if !ok {
		return nil, fmt.Errorf("missing or invalid argument %q", "moves")
	}
	out := make([]move, 0, len(raw))
	for _, e := range raw {
		m, ok := e.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("invalid element in argument %q", "moves")
		}
		from, err := stringArg(m, "from")
		if err != nil {
			return nil, err
		}
		to, err := stringArg(m, "to")
		if err != nil {
			return nil, err
		}
		out = append(out, move{from: vpath.New(from), to: vpath.New(to)})
	}
	return out, nil
}
