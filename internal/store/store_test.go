package store

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/go-while/go-clickcount/internal/logging"
)

// failingBackend returns loadErr/saveErr, otherwise behaves like memory
type failingBackend struct {
	count   int64
	missing bool
	loadErr error
	saveErr error
	saves   int
}

func (f *failingBackend) Load(ctx context.Context) (Snapshot, error) {
	if f.loadErr != nil {
		return Snapshot{}, f.loadErr
	}
	if f.missing {
		return Snapshot{Source: SourceMissing}, nil
	}
	return Snapshot{Count: f.count, Source: SourcePersisted}, nil
}

func (f *failingBackend) Save(ctx context.Context, count int64) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves++
	f.count = count
	f.missing = false
	return nil
}

func (f *failingBackend) Close() error { return nil }

// backendFactories lets each contract test run against every real backend
func backendFactories(t *testing.T) map[string]func() Backend {
	log := logging.Discard()
	return map[string]func() Backend{
		"json": func() Backend {
			return NewFileBackend(filepath.Join(t.TempDir(), "click_count.json"), log)
		},
		"sqlite": func() Backend {
			b, err := OpenSQLiteBackend(context.Background(), filepath.Join(t.TempDir(), "click_count.sq3"), log)
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			t.Cleanup(func() { b.Close() })
			return b
		},
	}
}

func TestCounterContract(t *testing.T) {
	ctx := context.Background()

	for name, newBackend := range backendFactories(t) {
		Convey("Given a fresh "+name+" counter", t, func() {
			c := NewCounter(newBackend())

			Convey("Get returns a defaulted zero", func() {
				snap, err := c.Get(ctx)
				So(err, ShouldBeNil)
				So(snap.Count, ShouldEqual, 0)
				So(snap.Source, ShouldEqual, SourceMissing)
				So(snap.Defaulted(), ShouldBeTrue)
			})

			Convey("N increments yield N", func() {
				for i := 1; i <= 5; i++ {
					n, err := c.Increment(ctx)
					So(err, ShouldBeNil)
					So(n, ShouldEqual, i)
				}
				snap, err := c.Get(ctx)
				So(err, ShouldBeNil)
				So(snap.Count, ShouldEqual, 5)
				So(snap.Source, ShouldEqual, SourcePersisted)
			})

			Convey("Reset after increments yields zero", func() {
				c.Increment(ctx)
				c.Increment(ctx)
				n, err := c.Reset(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 0)
				snap, _ := c.Get(ctx)
				So(snap.Count, ShouldEqual, 0)
				So(snap.Defaulted(), ShouldBeFalse)
			})

			Convey("increment, increment, reset, increment ends at 1", func() {
				c.Increment(ctx)
				c.Increment(ctx)
				c.Reset(ctx)
				n, err := c.Increment(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
			})

			Convey("Get does not change the stored value", func() {
				c.Increment(ctx)
				for i := 0; i < 3; i++ {
					snap, err := c.Get(ctx)
					So(err, ShouldBeNil)
					So(snap.Count, ShouldEqual, 1)
				}
			})

			Convey("EnsureRecord writes only when missing", func() {
				wrote, err := c.EnsureRecord(ctx)
				So(err, ShouldBeNil)
				So(wrote, ShouldBeTrue)
				snap, _ := c.Get(ctx)
				So(snap.Source, ShouldEqual, SourcePersisted)

				c.Increment(ctx)
				wrote, err = c.EnsureRecord(ctx)
				So(err, ShouldBeNil)
				So(wrote, ShouldBeFalse)
				snap, _ = c.Get(ctx)
				So(snap.Count, ShouldEqual, 1)
			})

			Convey("concurrent increments are not lost", func() {
				const workers, per = 8, 25
				var wg sync.WaitGroup
				for w := 0; w < workers; w++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						for i := 0; i < per; i++ {
							if _, err := c.Increment(ctx); err != nil {
								t.Errorf("increment: %v", err)
								return
							}
						}
					}()
				}
				wg.Wait()
				snap, err := c.Get(ctx)
				So(err, ShouldBeNil)
				So(snap.Count, ShouldEqual, workers*per)
			})
		})
	}
}

func TestFileBackendMalformedRecords(t *testing.T) {
	ctx := context.Background()

	Convey("Given a JSON record file", t, func() {
		path := filepath.Join(t.TempDir(), "click_count.json")
		b := NewFileBackend(path, logging.Discard())

		cases := []struct {
			name    string
			content string
		}{
			{"garbage", "{not json"},
			{"empty", ""},
			{"missing field", `{"clicks": 3}`},
			{"negative", `{"count": -4}`},
			{"string count", `{"count": "7"}`},
			{"fractional", `{"count": 1.5}`},
			{"integer-valued float", `{"count": 3.0}`},
			{"array", `[1, 2]`},
			{"null count", `{"count": null}`},
			{"top level null", `null`},
		}
		for _, tc := range cases {
			content := tc.content
			Convey("a "+tc.name+" record loads as zero without error", func() {
				So(os.WriteFile(path, []byte(content), 0o644), ShouldBeNil)
				snap, err := b.Load(ctx)
				So(err, ShouldBeNil)
				So(snap.Count, ShouldEqual, 0)
				So(snap.Source, ShouldEqual, SourceCorrupt)
			})
		}

		Convey("a valid record loads its count", func() {
			So(os.WriteFile(path, []byte(`{"count": 42}`), 0o644), ShouldBeNil)
			snap, err := b.Load(ctx)
			So(err, ShouldBeNil)
			So(snap.Count, ShouldEqual, 42)
			So(snap.Source, ShouldEqual, SourcePersisted)
		})

		Convey("a corrupt record recovers on the next increment", func() {
			So(os.WriteFile(path, []byte("###"), 0o644), ShouldBeNil)
			c := NewCounter(b)
			n, err := c.Increment(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)

			data, err := os.ReadFile(path)
			So(err, ShouldBeNil)
			So(string(data), ShouldEqual, `{"count":1}`)
		})

		Convey("EnsureRecord leaves a corrupt record alone", func() {
			So(os.WriteFile(path, []byte("###"), 0o644), ShouldBeNil)
			wrote, err := NewCounter(b).EnsureRecord(ctx)
			So(err, ShouldBeNil)
			So(wrote, ShouldBeFalse)
			data, _ := os.ReadFile(path)
			So(string(data), ShouldEqual, "###")
		})
	})
}

func TestFileBackendIO(t *testing.T) {
	ctx := context.Background()

	Convey("Given a record path that is a directory", t, func() {
		path := filepath.Join(t.TempDir(), "click_count.json")
		So(os.Mkdir(path, 0o755), ShouldBeNil)
		b := NewFileBackend(path, logging.Discard())

		Convey("Load reports unreadable and zero", func() {
			snap, err := b.Load(ctx)
			So(err, ShouldBeNil)
			So(snap.Count, ShouldEqual, 0)
			So(snap.Source, ShouldEqual, SourceUnreadable)
		})

		Convey("Save fails with ErrPersist", func() {
			err := b.Save(ctx, 3)
			So(err, ShouldNotBeNil)
			So(errors.Is(err, ErrPersist), ShouldBeTrue)
		})
	})

	Convey("Given a record path below a regular file", t, func() {
		dir := t.TempDir()
		blocker := filepath.Join(dir, "blocker")
		So(os.WriteFile(blocker, nil, 0o644), ShouldBeNil)
		b := NewFileBackend(filepath.Join(blocker, "click_count.json"), logging.Discard())

		Convey("Increment propagates the write failure", func() {
			_, err := NewCounter(b).Increment(ctx)
			So(errors.Is(err, ErrPersist), ShouldBeTrue)
		})
	})

	Convey("Given a nested record path", t, func() {
		path := filepath.Join(t.TempDir(), "data", "state", "click_count.json")
		b := NewFileBackend(path, logging.Discard())

		Convey("Save creates parent directories and leaves no temp files", func() {
			So(b.Save(ctx, 9), ShouldBeNil)
			entries, err := os.ReadDir(filepath.Dir(path))
			So(err, ShouldBeNil)
			So(len(entries), ShouldEqual, 1)
			So(entries[0].Name(), ShouldEqual, "click_count.json")
		})
	})

	Convey("A cancelled context stops Load and Save", t, func() {
		b := NewFileBackend(filepath.Join(t.TempDir(), "c.json"), logging.Discard())
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := b.Load(cctx)
		So(errors.Is(err, ErrPersist), ShouldBeTrue)
		So(errors.Is(err, context.Canceled), ShouldBeTrue)
		So(errors.Is(b.Save(cctx, 1), ErrPersist), ShouldBeTrue)
	})
}

func TestCounterFailures(t *testing.T) {
	ctx := context.Background()

	Convey("Given a backend that fails to load", t, func() {
		fb := &failingBackend{loadErr: persistErr("load", errors.New("disk gone"))}
		c := NewCounter(fb)

		Convey("Get and Increment return the error", func() {
			_, err := c.Get(ctx)
			So(errors.Is(err, ErrPersist), ShouldBeTrue)
			_, err = c.Increment(ctx)
			So(errors.Is(err, ErrPersist), ShouldBeTrue)
			So(fb.saves, ShouldEqual, 0)
		})

		Convey("Reset still works because it never loads", func() {
			n, err := c.Reset(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 0)
		})
	})

	Convey("Given a backend that fails to save", t, func() {
		fb := &failingBackend{count: 3, saveErr: persistErr("save", errors.New("read-only"))}
		c := NewCounter(fb)

		_, err := c.Increment(ctx)
		So(errors.Is(err, ErrPersist), ShouldBeTrue)
		_, err = c.Reset(ctx)
		So(errors.Is(err, ErrPersist), ShouldBeTrue)
		So(fb.count, ShouldEqual, 3)
	})

	Convey("Given a counter at its maximum", t, func() {
		fb := &failingBackend{count: math.MaxInt64}
		n, err := NewCounter(fb).Increment(ctx)
		So(errors.Is(err, ErrOverflow), ShouldBeTrue)
		So(n, ShouldEqual, int64(math.MaxInt64))
		So(fb.saves, ShouldEqual, 0)
	})
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	log := logging.Discard()

	Convey("Open picks the backend by name", t, func() {
		c, err := Open(ctx, "json", filepath.Join(t.TempDir(), "c.json"), log)
		So(err, ShouldBeNil)
		_, ok := c.backend.(*FileBackend)
		So(ok, ShouldBeTrue)

		c, err = Open(ctx, "sqlite", filepath.Join(t.TempDir(), "c.sq3"), log)
		So(err, ShouldBeNil)
		_, ok = c.backend.(*SQLiteBackend)
		So(ok, ShouldBeTrue)
		So(c.Close(), ShouldBeNil)

		_, err = Open(ctx, "etcd", "x", log)
		So(err, ShouldNotBeNil)
	})
}

func TestSourceString(t *testing.T) {
	Convey("Source names are stable", t, func() {
		So(SourcePersisted.String(), ShouldEqual, "persisted")
		So(SourceMissing.String(), ShouldEqual, "missing")
		So(SourceUnreadable.String(), ShouldEqual, "unreadable")
		So(SourceCorrupt.String(), ShouldEqual, "corrupt")
		So(Source(9).String(), ShouldEqual, "Source(9)")
	})
}
