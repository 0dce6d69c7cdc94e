package pipeline

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/gekko3d/voxelmarch"
	"github.com/gekko3d/voxelmarch/voxelrt/rt/gfx"
	"github.com/gekko3d/voxelmarch/voxelrt/rt/render"
	"github.com/gekko3d/voxelmarch/voxelrt/rt/shader"
	"github.com/gekko3d/voxelmarch/voxelrt/rt/volume"
)

// Timer receives a scope per snapshot and per pass.
type Timer interface {
	BeginScope(name string)
	EndScope(name string)
}

const snapshotScope = "snapshot"

// Orchestrator owns one render unit per pass and the previous-frame copies
// of the pass outputs.
type Orchestrator struct {
	dev    gfx.Device
	vol    *volume.Volume
	passes []PassDescriptor
	units  []*render.Unit
	prev   map[Source]*gfx.Texture

	width, height int

	Log   voxelmarch.Logger
	Timer Timer

	missing map[string]bool
}

// New validates passes and builds their units from sources. Errors are
// fatal; everything allocated so far is released.
func New(dev gfx.Device, sources fs.FS, vol *volume.Volume, passes []PassDescriptor, width, height int, log voxelmarch.Logger) (o *Orchestrator, err error) {
	if err := Validate(passes); err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("pipeline: invalid size %dx%d", width, height)
	}
	if log == nil {
		log = voxelmarch.NewNopLogger()
	}
	o = &Orchestrator{
		dev:     dev,
		vol:     vol,
		passes:  passes,
		width:   width,
		height:  height,
		Log:     log,
		missing: make(map[string]bool),
	}
	defer func() {
		if err != nil {
			o.Release()
			o = nil
		}
	}()

	for _, p := range passes {
		var target *gfx.TextureDescriptor
		if p.Offscreen {
			d := gfx.FloatTarget(p.Name, width, height)
			target = &d
		}
		u, err := render.NewUnit(dev, sources, p.Name, target)
		if err != nil {
			return o, fmt.Errorf("pass %s: %w", p.Name, err)
		}
		o.units = append(o.units, u)
	}
	if o.prev, err = o.allocPrevious(width, height); err != nil {
		return o, err
	}
	log.Debugf("pipeline ready: %d passes at %dx%d", len(o.units), width, height)
	return o, nil
}

// allocPrevious creates the previous-frame texture of every pass output that
// is sampled through a previous_* source. Nothing is kept on error.
func (o *Orchestrator) allocPrevious(width, height int) (prev map[Source]*gfx.Texture, err error) {
	prev = make(map[Source]*gfx.Texture)
	defer func() {
		if err != nil {
			releaseTextures(prev)
			prev = nil
		}
	}()
	for _, p := range o.passes {
		for _, b := range p.Bindings {
			if b.Kind != Texture {
				continue
			}
			if _, ok := b.Source.current(); !ok || prev[b.Source] != nil {
				continue
			}
			tex, err := gfx.NewTexture(o.dev, gfx.FloatTarget(b.Source.String(), width, height))
			if err != nil {
				return prev, fmt.Errorf("%s: %w", b.Source, err)
			}
			prev[b.Source] = tex
		}
	}
	return prev, nil
}

func releaseTextures(m map[Source]*gfx.Texture) {
	for s, t := range m {
		t.Release()
		delete(m, s)
	}
}

func (o *Orchestrator) Size() (width, height int) {
	return o.width, o.height
}

func (o *Orchestrator) Units() []*render.Unit {
	return o.units
}

// output returns the target texture of the pass writing s.
func (o *Orchestrator) output(s Source) *gfx.Texture {
	for i, p := range o.passes {
		if p.Offscreen && p.Output == s {
			return o.units[i].Target().Texture()
		}
	}
	return nil
}

func (o *Orchestrator) texture(s Source) (gfx.Sampled, error) {
	switch s {
	case SourceVolume:
		if o.vol == nil {
			return nil, fmt.Errorf("no volume")
		}
		return o.vol, nil
	case SourcePosition, SourceLighting:
		if t := o.output(s); t != nil {
			return t, nil
		}
	case SourcePreviousPosition, SourcePreviousLighting:
		if t := o.prev[s]; t != nil {
			return t, nil
		}
	}
	return nil, fmt.Errorf("texture %s not available", s)
}

// DrawFrame copies the pass outputs of the last frame into the previous-frame
// textures and then runs every pass in order. The caller brackets it with
// BeginFrame and EndFrame.
func (o *Orchestrator) DrawFrame(in FrameInputs) error {
	if err := o.snapshot(); err != nil {
		return err
	}
	for i := range o.passes {
		if err := o.applyPass(i, in); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) snapshot() error {
	o.begin(snapshotScope)
	defer o.end(snapshotScope)
	for prev, dst := range o.prev {
		cur, _ := prev.current()
		src := o.output(cur)
		if src == nil {
			continue
		}
		if err := gfx.CopyTexture(src, dst); err != nil {
			return fmt.Errorf("snapshot %s: %w", prev, err)
		}
	}
	return nil
}

// applyPass sets the uniforms of pass i, binds its textures to their units
// and draws it. Unit 0 is active again on return.
func (o *Orchestrator) applyPass(i int, in FrameInputs) error {
	p := o.passes[i]
	u := o.units[i]
	prog := u.Program()

	o.begin(p.Name)
	defer o.end(p.Name)

	units := gfx.BeginUnits(o.dev)
	defer units.End()

	for _, b := range p.Bindings {
		var err error
		switch b.Kind {
		case Matrix4:
			m := in.InvViewProj
			if b.Input == InputPrevViewProj {
				m = in.PrevViewProj
			}
			err = prog.SetMatrix4(b.Name, m)
		case Vector3:
			err = prog.SetVector3(b.Name, in.Eye)
		case Float:
			err = prog.SetFloat(b.Name, in.Time)
		case Texture:
			tex, terr := o.texture(b.Source)
			if terr != nil {
				return fmt.Errorf("%s: %s: %w", p.Name, b.Name, terr)
			}
			if err := units.Bind(b.Unit, tex); err != nil {
				return fmt.Errorf("%s: %s: %w", p.Name, b.Name, err)
			}
			err = prog.SetSampler(b.Name, b.Unit)
		}
		if errors.Is(err, shader.ErrUniformNotFound) {
			o.reportMissing(p.Name, b.Name, err)
			continue
		}
		if err != nil {
			return fmt.Errorf("%s: %s: %w", p.Name, b.Name, err)
		}
	}

	o.dev.Viewport(0, 0, o.width, o.height)
	if err := u.Draw(); err != nil {
		return fmt.Errorf("%s: %w", p.Name, err)
	}
	return nil
}

// reportMissing logs a uniform the program does not declare, once per
// program until the next reload.
func (o *Orchestrator) reportMissing(pass, name string, err error) {
	key := pass + "." + name
	if o.missing[key] {
		return
	}
	o.missing[key] = true
	o.Log.Debugf("%v", err)
}

func (o *Orchestrator) begin(name string) {
	if o.Timer != nil {
		o.Timer.BeginScope(name)
	}
}

func (o *Orchestrator) end(name string) {
	if o.Timer != nil {
		o.Timer.EndScope(name)
	}
}

// Reload recompiles every pass. Passes that fail keep their previous
// program; the failures are logged and returned joined.
func (o *Orchestrator) Reload() error {
	var errs []error
	for _, u := range o.units {
		if err := u.Reload(); err != nil {
			o.Log.Errorf("reload %s: %v", u.Name(), err)
			errs = append(errs, err)
			continue
		}
		o.Log.Infof("reloaded %s", u.Name())
	}
	clear(o.missing)
	return errors.Join(errs...)
}

// Resize reallocates the pass targets and previous-frame textures. Every
// replacement is allocated before any is installed; on error the pipeline
// keeps rendering at the old size.
func (o *Orchestrator) Resize(width, height int) (err error) {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("pipeline: invalid size %dx%d", width, height)
	}
	if width == o.width && height == o.height {
		return nil
	}
	targets := make([]*gfx.Target, len(o.units))
	defer func() {
		if err != nil {
			for _, t := range targets {
				t.Release()
			}
		}
	}()
	for i, u := range o.units {
		if targets[i], err = u.ResizedTarget(width, height); err != nil {
			return fmt.Errorf("resize %s: %w", u.Name(), err)
		}
	}
	prev, err := o.allocPrevious(width, height)
	if err != nil {
		return fmt.Errorf("resize: %w", err)
	}

	for i, u := range o.units {
		u.SwapTarget(targets[i])
	}
	releaseTextures(o.prev)
	o.prev = prev
	o.width, o.height = width, height
	return nil
}

func (o *Orchestrator) Release() {
	if o == nil {
		return
	}
	for _, u := range o.units {
		u.Release()
	}
	o.units = nil
	releaseTextures(o.prev)
}
