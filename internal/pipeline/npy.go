package pipeline

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/gorggle/lipread-processing-service/internal/domain/entity"
)

// EncodeNPY serializes the model tensor in NPY v1.0 format (little-endian
// float32), the interchange format the inference endpoint consumes.
func EncodeNPY(t *entity.ModelTensor) ([]byte, error) {
	backing, ok := t.Data.Data().([]float32)
	if !ok {
		return nil, fmt.Errorf("tensor backing is %T, want []float32", t.Data.Data())
	}

	shape := t.Data.Shape()
	dims := make([]string, len(shape))
	for i, d := range shape {
		dims[i] = fmt.Sprintf("%d", d)
	}
	header := fmt.Sprintf("{'descr': '<f4', 'fortran_order': False, 'shape': (%s), }",
		strings.Join(dims, ", "))

	// Total header length (magic + version + length field + dict + padding)
	// must be a multiple of 64; the dict is space-padded and newline-ended.
	base := 6 + 2 + 2
	padded := ((base + len(header) + 1 + 63) / 64) * 64
	pad := padded - base - len(header) - 1

	var buf bytes.Buffer
	buf.Grow(padded + 4*len(backing))
	buf.WriteString("\x93NUMPY")
	buf.WriteByte(1)
	buf.WriteByte(0)
	if err := binary.Write(&buf, binary.LittleEndian, uint16(padded-base)); err != nil {
		return nil, err
	}
	buf.WriteString(header)
	for i := 0; i < pad; i++ {
		buf.WriteByte(' ')
	}
	buf.WriteByte('\n')

	if err := binary.Write(&buf, binary.LittleEndian, backing); err != nil {
		return nil, fmt.Errorf("write tensor payload: %w", err)
	}
	return buf.Bytes(), nil
}
