package texvk

// ContextOption configures a Context during creation.
//
// Example:
//
//	// Vulkan copies first, host memory as the fallback.
//	ctx := texvk.NewContext(dev)
//
//	// Host memory only.
//	ctx := texvk.NewContext(dev, texvk.WithBlitters(texvk.NewCPUBlitter()))
type ContextOption func(*contextOptions)

type contextOptions struct {
	blitters []Blitter
	workers  int
}

func defaultOptions() contextOptions {
	return contextOptions{
		blitters: []Blitter{NewVulkanBlitter(), NewCPUBlitter()},
	}
}

// WithBlitters replaces the default blitter chain. Blitters are tried in
// the given order.
func WithBlitters(b ...Blitter) ContextOption {
	return func(o *contextOptions) {
		o.blitters = append([]Blitter(nil), b...)
	}
}

// WithWorkers lets host memory clears spread subresources over n
// goroutines. Values below two keep them on the calling goroutine.
func WithWorkers(n int) ContextOption {
	return func(o *contextOptions) {
		o.workers = n
	}
}
