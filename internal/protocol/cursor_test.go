package protocol_test

import (
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"

	"github.com/energizer-project/realmlink/internal/protocol"
)

var _ = Describe("Cursor", func() {
	Describe("free readers", func() {
		It("reads little-endian integers and advances", func() {
			buf := join(u8(0x7F), u16(0x1234), u32(0xDEADBEEF), u64(0x0102030405060708))

			v8, off := protocol.ReadU8(buf, 0)
			Expect(v8).To(Equal(uint8(0x7F)))
			v16, off := protocol.ReadU16(buf, off)
			Expect(v16).To(Equal(uint16(0x1234)))
			v32, off := protocol.ReadU32(buf, off)
			Expect(v32).To(Equal(uint32(0xDEADBEEF)))
			v64, off := protocol.ReadU64(buf, off)
			Expect(v64).To(Equal(uint64(0x0102030405060708)))
			Expect(off).To(Equal(len(buf)))
		})

		It("yields zero and parks at the end on short input", func() {
			buf := []byte{1, 2, 3}
			v, off := protocol.ReadU32(buf, 0)
			Expect(v).To(BeZero())
			Expect(off).To(Equal(3))

			v64, off := protocol.ReadU64(buf, 2)
			Expect(v64).To(BeZero())
			Expect(off).To(Equal(3))
		})

		It("reads a terminated cstring and moves past the NUL", func() {
			buf := join(cstr("Thrall"), cstr("Jaina"))
			s, off := protocol.ReadCString(buf, 0)
			Expect(s).To(Equal("Thrall"))
			Expect(off).To(Equal(7))
			s, off = protocol.ReadCString(buf, off)
			Expect(s).To(Equal("Jaina"))
			Expect(off).To(Equal(len(buf)))
		})

		It("returns the rest of the buffer for an unterminated cstring", func() {
			s, off := protocol.ReadCString([]byte("abc"), 0)
			Expect(s).To(Equal("abc"))
			Expect(off).To(Equal(3))
		})

		It("returns an empty string past the end", func() {
			s, off := protocol.ReadCString([]byte("abc"), 5)
			Expect(s).To(BeEmpty())
			Expect(off).To(Equal(3))
		})
	})

	Describe("Reader", func() {
		It("reports short once a read runs out", func() {
			r := protocol.NewReader(u16(7))
			Expect(r.ReadUint32()).To(BeZero())
			Expect(r.Short()).To(BeTrue())
			Expect(r.Remaining()).To(BeZero())

			err := r.Err("probe")
			Expect(errors.Is(err, protocol.ErrShortPacket)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("probe"))
		})

		It("is not short after exact consumption", func() {
			r := protocol.NewReader(join(u32(1), u8(2)))
			Expect(r.ReadUint32()).To(Equal(uint32(1)))
			Expect(r.ReadUint8()).To(Equal(uint8(2)))
			Expect(r.Short()).To(BeFalse())
			Expect(r.Err("exact")).To(Succeed())
		})

		It("marks a missing cstring as short", func() {
			r := protocol.NewReader(cstr("only"))
			Expect(r.ReadCString()).To(Equal("only"))
			Expect(r.ReadCString()).To(BeEmpty())
			Expect(r.Short()).To(BeTrue())
		})

		It("copies the bytes it returns", func() {
			src := []byte{1, 2, 3, 4}
			r := protocol.NewReader(src)
			got := r.ReadBytes(2)
			src[0] = 9
			Expect(got).To(Equal([]byte{1, 2}))
		})
	})

	Describe("packed identifiers", func() {
		DescribeTable("encode and decode the mask form",
			func(g protocol.GUID, encoded []byte) {
				Expect(protocol.AppendPackedGUID(nil, g)).To(Equal(encoded))
				Expect(protocol.PackedGUIDSize(g)).To(Equal(len(encoded)))

				got, off, ok := protocol.ReadPackedGUID(encoded, 0)
				Expect(ok).To(BeTrue())
				Expect(off).To(Equal(len(encoded)))
				Expect(got).To(Equal(g))
			},
			Entry("zero", protocol.GUID(0), []byte{0x00}),
			Entry("low byte", protocol.GUID(0x2A), []byte{0x01, 0x2A}),
			Entry("sparse", protocol.GUID(0xF130000000000007), []byte{0xC1, 0x07, 0x30, 0xF1}),
			Entry("dense", protocol.GUID(0x0102030405060708), []byte{0xFF, 8, 7, 6, 5, 4, 3, 2, 1}),
		)

		It("fails when an announced byte is missing", func() {
			_, off, ok := protocol.ReadPackedGUID([]byte{0x03, 0x01}, 0)
			Expect(ok).To(BeFalse())
			Expect(off).To(Equal(2))
		})

		It("parses decimal and hex text", func() {
			g, err := protocol.ParseGUID("0x2A")
			Expect(err).To(Succeed())
			Expect(g).To(Equal(protocol.GUID(42)))

			g, err = protocol.ParseGUID("42")
			Expect(err).To(Succeed())
			Expect(g).To(Equal(protocol.GUID(42)))

			_, err = protocol.ParseGUID("nope")
			Expect(err).To(HaveOccurred())
		})
	})
})
