package config

import (
	"errors"
	"fmt"
	"strings"

	"smexplorer/internal/pathnorm"
	"smexplorer/internal/pipeline"
	"smexplorer/pkg/contract"
	"smexplorer/pkg/registry"
	wfs "smexplorer/plugins/writer/filesystem"
)

var logLevels = map[string]struct{}{"debug": {}, "info": {}, "warn": {}, "error": {}}

// Validate 对最小必要边界做静态校验。
func Validate(cfg Config) error {
	if len(cfg.Inputs) == 0 {
		return errors.New("config: inputs empty")
	}
	// 输入不得为空字符串；"-" 不能与其他输入混用
	dash := false
	for _, r := range cfg.Inputs {
		if strings.TrimSpace(r) == "" {
			return errors.New("config: input path cannot be empty")
		}
		if strings.TrimSpace(r) == "-" {
			dash = true
		}
	}
	if dash && len(cfg.Inputs) > 1 {
		return errors.New("config: '-' cannot be mixed with other inputs")
	}
	if cfg.MapPath != "" && len(cfg.Inputs) > 1 {
		return errors.New("config: map_path requires exactly one input")
	}
	if cfg.Concurrency < 1 {
		return errors.New("config: concurrency must be >= 1")
	}
	format := effName(strings.ToLower(cfg.Format), Defaults().Format)
	if registry.Renderer[format] == nil {
		return fmt.Errorf("config: format %q not supported (want one of %s)", format, strings.Join(registry.Formats(), ", "))
	}
	for name := range cfg.Options.Renderer {
		if registry.Renderer[name] == nil {
			return fmt.Errorf("config: renderer options for unknown format %q", name)
		}
	}
	for i, r := range cfg.Replace {
		if r.Pattern == "" {
			return fmt.Errorf("config: replace[%d]: empty pattern", i)
		}
	}
	if _, err := pathnorm.CompileRules(cfg.Replace); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if lv := strings.ToLower(strings.TrimSpace(cfg.Logging.Level)); lv != "" {
		if _, ok := logLevels[lv]; !ok {
			return fmt.Errorf("config: logging.level %q invalid", cfg.Logging.Level)
		}
	}
	// 组件名若为空，使用默认名（由 Defaults() 提供）。此处只要最终有值即可。
	if name := effName(cfg.Components.Reader, Defaults().Components.Reader); registry.Reader[name] == nil {
		return fmt.Errorf("config: reader %q not registered", name)
	}
	if name := effName(cfg.Components.Decoder, Defaults().Components.Decoder); registry.Decoder[name] == nil {
		return fmt.Errorf("config: decoder %q not registered", name)
	}
	if name := effName(cfg.Components.Writer, Defaults().Components.Writer); registry.Writer[name] == nil {
		return fmt.Errorf("config: writer %q not registered", name)
	}
	return nil
}

// Assemble 构造 Components 与 Settings。
// 严格 Options 解析在 registry（工厂）层进行；此处只传 raw JSON。
// Output 非空时直接写该文件（原子替换），忽略 components.writer。
func Assemble(cfg Config) (pipeline.Components, pipeline.Settings, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}

	d := Defaults()
	rn := effName(cfg.Components.Reader, d.Components.Reader)
	dn := effName(cfg.Components.Decoder, d.Components.Decoder)
	wn := effName(cfg.Components.Writer, d.Components.Writer)
	fn := effName(strings.ToLower(cfg.Format), d.Format)

	r, err := registry.Reader[rn](cfg.Options.Reader)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("config: reader %q options: %w", rn, err)
	}
	dec, err := registry.Decoder[dn](cfg.Options.Decoder)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("config: decoder %q options: %w", dn, err)
	}
	ren, err := registry.Renderer[fn](cfg.Options.Renderer[fn])
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("config: renderer %q options: %w", fn, err)
	}

	var (
		w  contract.Writer
		id contract.ArtifactID
	)
	if out := strings.TrimSpace(cfg.Output); out != "" {
		fw, fid, err := wfs.ForFile(out)
		if err != nil {
			return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("config: output %q: %w", out, err)
		}
		w, id = fw, fid
	} else {
		w, err = registry.Writer[wn](cfg.Options.Writer)
		if err != nil {
			return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("config: writer %q options: %w", wn, err)
		}
		id = contract.ArtifactID("report." + reportExt(fn))
	}

	rules := append([]contract.ReplaceRule(nil), cfg.Replace...)
	set := pipeline.Settings{
		Inputs:      cloneStrings(cfg.Inputs),
		MapPath:     cfg.MapPath,
		Concurrency: cfg.Concurrency,
		OnlyMapped:  deref(cfg.OnlyMapped),
		Path: pathnorm.Mode{
			StripCommonPrefix: !deref(cfg.NoRoot),
			Replace:           rules,
		},
		SkipFailed:  deref(cfg.SkipFailed),
		Output:      id,
		MetricsFile: cfg.MetricsFile,
	}
	comp := pipeline.Components{Reader: r, Decoder: dec, Renderer: ren, Writer: w}
	return comp, set, nil
}

// reportExt 为格式对应的默认文件扩展名（components.writer=fs 且未给 output 时使用）。
func reportExt(format string) string {
	switch format {
	case "table":
		return "txt"
	default:
		return format
	}
}

func deref(b *bool) bool { return b != nil && *b }

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}
