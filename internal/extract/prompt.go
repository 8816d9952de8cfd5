package extract

import "fmt"

// SystemPrompt primes the model as a Thai parcel data specialist that
// replies with JSON only.
const SystemPrompt = "คุณเป็นผู้เชี่ยวชาญด้านข้อมูลพัสดุไทย ตอบกลับเป็น JSON เท่านั้น"

// promptTemplate encodes the four target keys and the extraction
// heuristics as static instruction text. All heuristic judgment happens
// inside the model; this template only states the schema and the hints.
const promptTemplate = `คุณเป็นผู้เชี่ยวชาญในการวิเคราะห์ข้อมูลพัสดุไทย จากข้อความที่สกัดได้จาก OCR กรุณาวิเคราะห์และสกัดข้อมูลต่อไปนี้ในรูปแบบ JSON:

1. **ชื่อผู้รับ** (recipient_name) - มักอยู่หลังคำว่า "ผู้รับ", "Receiver" หรือ "To"
2. **เลขห้อง** (room_number) - เช่น "ห้อง 301" หรือตัวเลขห้องพัก
3. **บริษัทขนส่ง** (shipping_company) - เช่น Flash Express, Kerry, J&T, ไปรษณีย์ไทย
4. **รหัสพัสดุ** (tracking_number) - โดยทั่วไปเป็นตัวอักษรและตัวเลข 10-20 ตัว มักอยู่บรรทัดท้าย

**ข้อความจาก OCR:**
%s

**ตอบกลับเฉพาะ JSON ที่มี key: recipient_name, room_number, shipping_company, tracking_number เท่านั้น ห้ามมีคำอธิบายอื่น**`

// BuildPrompt renders the OCR text into the extraction instruction.
// Pure template substitution: the OCR text is embedded verbatim and
// never truncated, since the tracking number is often the last line.
func BuildPrompt(ocrText string) string {
	return fmt.Sprintf(promptTemplate, ocrText)
}
