package provider

import "context"

// Runtime is the capability set every provider exposes (spec §4.2). The
// registry holds a map of canonical name to Runtime; callers never type-
// switch on the concrete implementation, matching the sum-type design note
// in spec.md §9 ("dynamic dispatch... equivalent is a sum type").
type Runtime interface {
	Descriptor() *RuntimeDescriptor

	// FetchVersions lists available versions, newest first. Results are not
	// cached between calls.
	FetchVersions(ctx context.Context) ([]VersionInfo, error)

	// DownloadURL returns the archive URL for a version/platform pair, or
	// (nil-ish) ok=false when the installer must use a provider-custom path.
	DownloadURL(ctx context.Context, version string, platform Platform) (url string, ok bool, err error)

	// Install materializes (name, version, platform) in the store. Must be
	// idempotent: re-entry on an already-verified install returns
	// InstallResult{AlreadyInstalled: true}.
	Install(ctx context.Context, version string, pctx *ProviderContext) (*InstallResult, error)

	// PostExtract returns actions to run against the freshly extracted tree.
	PostExtract(ctx context.Context, version string, installDir string) ([]PostExtractAction, error)

	// PostInstall runs after verification succeeds.
	PostInstall(ctx context.Context, version string, pctx *ProviderContext) error

	// PrepareEnvironment returns env vars applied to ALL invocations that
	// use this runtime, directly or as a dependency.
	PrepareEnvironment(ctx context.Context, version string, pctx *ProviderContext) (map[string]string, error)

	// ExecutionEnvironment returns env vars applied only when this runtime
	// is itself the direct target of the invocation.
	ExecutionEnvironment(ctx context.Context, version string, pctx *ProviderContext) (map[string]string, error)

	// IsVersionInstallable reports false for proxy-managed versions (e.g.
	// Yarn >= 2 via corepack), signaling the installer must not download and
	// the executor must call PrepareExecution instead.
	IsVersionInstallable(version string) bool

	// PrepareExecution resolves a proxy-managed version to something
	// runnable. Only called when IsVersionInstallable returns false.
	PrepareExecution(ctx context.Context, version string, pctx *ProviderContext) (*ExecutionPrep, error)
}

// BaseRuntime implements the parts of Runtime that are identical across
// most providers (env application and proxy handling defaults), so native
// providers can embed it and override only what differs.
type BaseRuntime struct {
	D *RuntimeDescriptor
}

func (b *BaseRuntime) Descriptor() *RuntimeDescriptor { return b.D }

func (b *BaseRuntime) PostExtract(context.Context, string, string) ([]PostExtractAction, error) {
	return nil, nil
}

func (b *BaseRuntime) PostInstall(context.Context, string, *ProviderContext) error { return nil }

func (b *BaseRuntime) PrepareEnvironment(context.Context, string, *ProviderContext) (map[string]string, error) {
	return nil, nil
}

func (b *BaseRuntime) ExecutionEnvironment(context.Context, string, *ProviderContext) (map[string]string, error) {
	return nil, nil
}

func (b *BaseRuntime) IsVersionInstallable(string) bool { return true }

func (b *BaseRuntime) PrepareExecution(context.Context, string, *ProviderContext) (*ExecutionPrep, error) {
	return nil, nil
}
