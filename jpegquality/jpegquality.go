// Package jpegquality estimates quality factor jpeg image was saved with.
package jpegquality

import (
	"bytes"
	"errors"
	"io"
)

// Errors
var (
	ErrInvalidJPEG  = errors.New("invalid JPEG header")
	ErrWrongTable   = errors.New("wrong size for quantization table")
	ErrShortSegment = errors.New("short segment length")
	ErrShortDQT     = errors.New("DQT section too short")
	ErrNoDQT        = errors.New("no luminance quantization table")
)

// Fixed bug base on HuangYeWuDeng [ttys3/jpegquality](https://github.com/ttys3/jpegquality/commit/6176ce2bb32baad02c5b3dcd977dbc2eab406312)

const (
	soiMarker = 0xd8 // Start Of Image.
	eoiMarker = 0xd9 // End Of Image.
	sosMarker = 0xda // Start Of Scan.
	dqtMarker = 0xdb // Define Quantization Table.
)

// Sample luminance quantization table (ITU T.81 Annex K), only needed for guesstimate of quality factor.
// Note it is in zigzag order.
var stdLuminanceQuantTbl = [64]int{
	16, 11, 12, 14, 12, 10, 16, 14,
	13, 14, 18, 17, 16, 19, 24, 40,
	26, 24, 22, 22, 24, 49, 35, 37,
	29, 40, 58, 51, 61, 60, 57, 51,
	56, 55, 64, 72, 92, 78, 64, 68,
	87, 69, 55, 56, 80, 109, 81, 87,
	95, 98, 103, 104, 103, 62, 77, 113,
	121, 112, 100, 120, 92, 101, 103, 99,
}

// Qualitier reports estimated quality.
type Qualitier interface {
	Quality() int
}

type jpegReader struct {
	rs io.ReadSeeker
	q  int
}

// NewWithBytes estimates quality of jpeg in buf.
func NewWithBytes(buf []byte) (Qualitier, error) {
	return New(bytes.NewReader(buf))
}

// New estimates quality of jpeg read from rs. Only the luminance table is used.
func New(rs io.ReadSeeker) (Qualitier, error) {

	jr := &jpegReader{rs: rs}
	if _, err := jr.rs.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	sign := make([]byte, 2)
	if _, err := io.ReadFull(jr.rs, sign); err != nil {
		return nil, err
	}
	if sign[0] != 0xff || sign[1] != soiMarker {
		return nil, ErrInvalidJPEG
	}

	q, err := jr.readQuality()
	if err != nil {
		return nil, err
	}
	jr.q = q
	return jr, nil
}

func (jr *jpegReader) readQuality() (int, error) {

	for {
		mark, err := jr.readMarker()
		if err != nil {
			return 0, err
		}
		if mark == eoiMarker || mark == sosMarker {
			// tables must come before image data
			return 0, ErrNoDQT
		}

		sign := make([]byte, 2)
		if _, err := io.ReadFull(jr.rs, sign); err != nil {
			return 0, err
		}
		length := int(sign[0])<<8 + int(sign[1]) - 2
		if length < 0 {
			return 0, ErrShortSegment
		}

		if mark != dqtMarker {
			if _, err := jr.rs.Seek(int64(length), io.SeekCurrent); err != nil {
				return 0, err
			}
			continue
		}

		buf := make([]byte, length)
		if _, err := io.ReadFull(jr.rs, buf); err != nil {
			return 0, ErrShortDQT
		}
		if q, ok, err := tableQuality(buf); err != nil {
			return 0, err
		} else if ok {
			return q, nil
		}
	}
}

// tableQuality walks DQT segment and computes quality from luminance table if segment has one.
func tableQuality(buf []byte) (int, bool, error) {

	for a := 0; a < len(buf); {
		pq, tq := buf[a]>>4, int(buf[a]&0x0f)
		a++

		size := 64
		if pq != 0 {
			size = 128
		}
		if a+size > len(buf) {
			return 0, false, ErrWrongTable
		}

		if tq != 0 {
			// not luminance, skip
			a += size
			continue
		}

		allones := true
		var cumsf float64
		for i := 0; i < 64; i++ {
			var val int
			if pq != 0 {
				val = int(buf[a])<<8 + int(buf[a+1])
				a += 2
			} else {
				val = int(buf[a])
				a++
			}
			// scaling factor in percent
			cumsf += 100.0 * float64(val) / float64(stdLuminanceQuantTbl[i])
			if val != 1 {
				allones = false
			}
		}

		var qual float64
		cumsf /= 64.0 // mean scale factor
		switch {
		case allones:
			qual = 100.0
		case cumsf <= 100.0:
			qual = (200.0 - cumsf) / 2.0
		default:
			qual = 5000.0 / cumsf
		}
		return int(qual + 0.5), true, nil
	}
	return 0, false, nil
}

func (jr *jpegReader) readMarker() (byte, error) {

	mark := make([]byte, 1)
	for {
		if _, err := io.ReadFull(jr.rs, mark); err != nil {
			return 0, ErrInvalidJPEG
		}
		if mark[0] != 0xff {
			continue
		}
		// skip fill bytes
		for mark[0] == 0xff {
			if _, err := io.ReadFull(jr.rs, mark); err != nil {
				return 0, ErrInvalidJPEG
			}
		}
		if mark[0] != 0x00 {
			return mark[0], nil
		}
	}
}

// Quality returns estimated quality in 1-100 range.
func (jr *jpegReader) Quality() int {
	return jr.q
}
