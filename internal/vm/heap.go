package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/loxvm/glox/internal/config"
)

// Approximate per-object sizes used for the collection trigger. The exact
// numbers matter less than being monotonic in real memory use.
const (
	baseStringSize  = 48
	functionSize    = 96
	nativeSize      = 48
	closureSize     = 48
	upvalueSize     = 56
	classSize       = 80
	instanceSize    = 80
	boundMethodSize = 56
	slotSize        = 24 // one Value, for closure upvalue arrays
)

// RootMarker is implemented by anything that holds GC roots. The VM
// registers itself for the lifetime of the heap; the compiler registers
// itself only while a compilation is in flight.
type RootMarker interface {
	MarkRoots(h *Heap)
}

// HeapStats reports the collector's view of the heap.
type HeapStats struct {
	Objects    int // live objects on the all-objects list
	Bytes      int // accounted live bytes
	NextGC     int // threshold for the next collection
	Cycles     int // completed collections
	FreedBytes int // total bytes reclaimed over all cycles
}

// Heap owns every runtime object and runs mark-and-sweep collection
// interleaved with allocation. Collection is synchronous: it completes
// before the triggering allocation returns.
type Heap struct {
	objects Obj // intrusive list of all allocations

	// Intern table. Lookup only - entries are dropped when their string is
	// swept, so the table never keeps a string alive.
	strings map[string]*ObjString

	bytesAllocated int
	nextGC         int
	minThreshold   int
	growthFactor   int
	objectCount    int
	cycles         int
	freedBytes     int

	stress bool
	logGC  bool
	logOut io.Writer

	roots []RootMarker
	gray  []Obj // worklist for the mark phase
}

// NewHeap creates a heap tuned by cfg. Zero-valued fields fall back to the
// package defaults.
func NewHeap(cfg config.GCConfig) *Heap {
	threshold := cfg.InitialThreshold
	if threshold <= 0 {
		threshold = config.DefaultGCThreshold
	}
	factor := cfg.GrowthFactor
	if factor < 2 {
		factor = config.DefaultGCGrowthFactor
	}
	return &Heap{
		strings:      make(map[string]*ObjString),
		nextGC:       threshold,
		minThreshold: threshold,
		growthFactor: factor,
		stress:       cfg.Stress,
		logGC:        cfg.Log,
		logOut:       os.Stderr,
	}
}

// SetLogOutput redirects collection logging, for tests.
func (h *Heap) SetLogOutput(w io.Writer) {
	h.logOut = w
}

// AddRoot registers a root set with the collector.
func (h *Heap) AddRoot(r RootMarker) {
	h.roots = append(h.roots, r)
}

// RemoveRoot unregisters a root set.
func (h *Heap) RemoveRoot(r RootMarker) {
	for i, existing := range h.roots {
		if existing == r {
			h.roots = append(h.roots[:i], h.roots[i+1:]...)
			return
		}
	}
}

// Stats returns a snapshot of the collector's accounting.
func (h *Heap) Stats() HeapStats {
	return HeapStats{
		Objects:    h.objectCount,
		Bytes:      h.bytesAllocated,
		NextGC:     h.nextGC,
		Cycles:     h.cycles,
		FreedBytes: h.freedBytes,
	}
}

// allocate links obj into the heap after charging size bytes against the
// collection threshold. The collection, if any, runs before obj is linked,
// so a fresh object is never swept by the cycle its own allocation
// triggered.
func (h *Heap) allocate(obj Obj, size int) {
	if h.stress || h.bytesAllocated+size > h.nextGC {
		h.Collect()
	}

	hdr := obj.header()
	hdr.size = size
	hdr.next = h.objects
	h.objects = obj
	h.bytesAllocated += size
	h.objectCount++
}

// NewString returns the interned string for chars, allocating it on first
// use.
func (h *Heap) NewString(chars string) *ObjString {
	if interned, ok := h.strings[chars]; ok {
		return interned
	}
	s := &ObjString{Chars: chars}
	h.allocate(s, baseStringSize+len(chars))
	h.strings[chars] = s
	return s
}

// NewFunction allocates an empty function. The compiler fills it in.
func (h *Heap) NewFunction(name *ObjString) *ObjFunction {
	f := &ObjFunction{Chunk: NewChunk(), Name: name}
	h.allocate(f, functionSize)
	return f
}

// NewNative wraps a host function.
func (h *Heap) NewNative(name string, arity int, fn NativeFn) *ObjNative {
	n := &ObjNative{Name: name, Arity: arity, Fn: fn}
	h.allocate(n, nativeSize)
	return n
}

// NewClosure allocates a closure with room for the function's upvalues.
func (h *Heap) NewClosure(function *ObjFunction) *ObjClosure {
	c := &ObjClosure{
		Function: function,
		Upvalues: make([]*ObjUpvalue, function.UpvalueCount),
	}
	h.allocate(c, closureSize+slotSize*function.UpvalueCount)
	return c
}

// NewUpvalue allocates an open upvalue aliasing the given stack slot.
func (h *Heap) NewUpvalue(location int) *ObjUpvalue {
	u := &ObjUpvalue{Location: location, Closed: NilVal()}
	h.allocate(u, upvalueSize)
	return u
}

// NewClass allocates a class with an empty method table.
func (h *Heap) NewClass(name *ObjString) *ObjClass {
	c := &ObjClass{Name: name, Methods: make(map[*ObjString]Value)}
	h.allocate(c, classSize)
	return c
}

// NewInstance allocates an instance of class with no fields.
func (h *Heap) NewInstance(class *ObjClass) *ObjInstance {
	i := &ObjInstance{Class: class, Fields: make(map[*ObjString]Value)}
	h.allocate(i, instanceSize)
	return i
}

// NewBoundMethod pairs receiver and method.
func (h *Heap) NewBoundMethod(receiver Value, method *ObjClosure) *ObjBoundMethod {
	b := &ObjBoundMethod{Receiver: receiver, Method: method}
	h.allocate(b, boundMethodSize)
	return b
}

// MarkValue marks the object behind v, if any.
func (h *Heap) MarkValue(v Value) {
	if v.Type == ValObj {
		h.MarkObject(v.Obj)
	}
}

// MarkObject adds obj to the gray worklist unless it is already marked.
func (h *Heap) MarkObject(obj Obj) {
	if obj == nil || obj.header().marked {
		return
	}
	obj.header().marked = true
	h.gray = append(h.gray, obj)
}

// Collect runs one full mark-and-sweep cycle.
func (h *Heap) Collect() {
	before := h.bytesAllocated

	for _, r := range h.roots {
		r.MarkRoots(h)
	}
	h.traceReferences()
	h.sweep()

	h.cycles++
	h.freedBytes += before - h.bytesAllocated
	h.nextGC = h.bytesAllocated * h.growthFactor
	if h.nextGC < h.minThreshold {
		h.nextGC = h.minThreshold
	}

	if h.logGC {
		fmt.Fprintf(h.logOut, "gc: collected %d bytes (%d live, next at %d)\n",
			before-h.bytesAllocated, h.bytesAllocated, h.nextGC)
	}
}

// traceReferences drains the gray worklist, marking everything reachable
// from already-marked objects.
func (h *Heap) traceReferences() {
	for len(h.gray) > 0 {
		obj := h.gray[len(h.gray)-1]
		h.gray = h.gray[:len(h.gray)-1]
		h.blacken(obj)
	}
}

// blacken marks every object directly referenced by obj. Strings and
// natives are leaves.
func (h *Heap) blacken(obj Obj) {
	switch o := obj.(type) {
	case *ObjString, *ObjNative:
		// leaves
	case *ObjFunction:
		if o.Name != nil {
			h.MarkObject(o.Name)
		}
		for _, constant := range o.Chunk.Constants {
			h.MarkValue(constant)
		}
	case *ObjClosure:
		h.MarkObject(o.Function)
		for _, upvalue := range o.Upvalues {
			if upvalue != nil {
				h.MarkObject(upvalue)
			}
		}
	case *ObjUpvalue:
		h.MarkValue(o.Closed)
	case *ObjClass:
		h.MarkObject(o.Name)
		for name, method := range o.Methods {
			h.MarkObject(name)
			h.MarkValue(method)
		}
	case *ObjInstance:
		h.MarkObject(o.Class)
		for name, value := range o.Fields {
			h.MarkObject(name)
			h.MarkValue(value)
		}
	case *ObjBoundMethod:
		h.MarkValue(o.Receiver)
		h.MarkObject(o.Method)
	}
}

// sweep unlinks every unmarked object and clears the survivors' marks.
// Intern-table entries for swept strings are removed in the same pass.
func (h *Heap) sweep() {
	var prev Obj
	obj := h.objects
	for obj != nil {
		hdr := obj.header()
		if hdr.marked {
			hdr.marked = false
			prev = obj
			obj = hdr.next
			continue
		}

		unreached := obj
		obj = hdr.next
		if prev == nil {
			h.objects = obj
		} else {
			prev.header().next = obj
		}

		if s, ok := unreached.(*ObjString); ok && h.strings[s.Chars] == s {
			delete(h.strings, s.Chars)
		}
		h.bytesAllocated -= hdr.size
		h.objectCount--
		hdr.next = nil
	}
}
