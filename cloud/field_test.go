package cloud

import "testing"

func TestFieldSizes(t *testing.T) {
	type spec struct {
		field   Field
		expSize int
	}
	specs := []spec{
		{XYZ, 12},
		{IsHit, 4},
		{RayIdx, 4},
		{Distance, 4},
		{Normal, 12},
		{RingID, 2},
		{Padding8, 1},
		{Padding32, 4},
		{RayPose, 48},
	}

	for index, s := range specs {
		if got := s.field.Size(); got != s.expSize {
			t.Fatalf("[spec %d] expected %s size to be %d; got %d", index, s.field, s.expSize, got)
		}
	}
}

func TestFieldDummy(t *testing.T) {
	for _, f := range []Field{Padding8, Padding16, Padding32} {
		if !f.IsDummy() {
			t.Fatalf("expected %s to be a dummy field", f)
		}
	}
	for _, f := range []Field{XYZ, IsHit, Distance} {
		if f.IsDummy() {
			t.Fatalf("expected %s not to be a dummy field", f)
		}
	}
}

func TestHostArrayResizePreserve(t *testing.T) {
	arr := NewHostArray(Distance, MemHostPageable)
	if err := arr.Resize(4, false, false, nil); err != nil {
		t.Fatal(err)
	}

	data, err := arr.WritePtr()
	if err != nil {
		t.Fatal(err)
	}
	for i := range data {
		data[i] = byte(i + 1)
	}

	if err = arr.Resize(8, true, true, nil); err != nil {
		t.Fatal(err)
	}
	data, err = arr.ReadPtr()
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 8*4 {
		t.Fatalf("expected %d bytes; got %d", 8*4, len(data))
	}
	for i := 0; i < 16; i++ {
		if data[i] != byte(i+1) {
			t.Fatalf("expected preserved byte %d at %d; got %d", i+1, i, data[i])
		}
	}
	for i := 16; i < 32; i++ {
		if data[i] != 0 {
			t.Fatalf("expected zeroed byte at %d; got %d", i, data[i])
		}
	}
}

func TestHostArrayCopyFrom(t *testing.T) {
	src := NewHostArray(Distance, MemHostPageable)
	if err := src.Resize(3, false, false, nil); err != nil {
		t.Fatal(err)
	}
	data, _ := src.WritePtr()
	for i := range data {
		data[i] = byte(42 + i)
	}

	dst := NewHostArray(Distance, MemHostPinned)
	if err := dst.CopyFrom(src, nil); err != nil {
		t.Fatal(err)
	}
	if dst.Count() != 3 {
		t.Fatalf("expected count 3; got %d", dst.Count())
	}
	out, _ := dst.ReadPtr()
	for i := range out {
		if out[i] != byte(42+i) {
			t.Fatalf("copied data mismatch at byte %d", i)
		}
	}
}

func TestHostArrayFieldMismatch(t *testing.T) {
	src := NewHostArray(Distance, MemHostPageable)
	dst := NewHostArray(Azimuth, MemHostPageable)
	if err := dst.CopyFrom(src, nil); err == nil {
		t.Fatal("expected copy between different fields to fail")
	}
}

func TestDeviceArrayHostPointers(t *testing.T) {
	arr := NewDeviceArray(nil, XYZ, "test")
	if _, err := arr.ReadPtr(); err == nil {
		t.Fatal("expected ReadPtr on a device array to fail")
	}
	if _, err := arr.WritePtr(); err == nil {
		t.Fatal("expected WritePtr on a device array to fail")
	}
}
