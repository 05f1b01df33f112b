package mcpserver

// NoteFormatContract describes the note record and the backup file format
// that LLM consumers should follow when creating or importing notes.
const NoteFormatContract = `# Jotter Note Format Contract

Every note is a JSON object with exactly these fields.

## Record

` + "```" + `json
{
  "id": "3f2b8c1e-6a4d-4e8f-9b0a-1c2d3e4f5a6b",
  "title": "Groceries",
  "content": "Milk, eggs",
  "pinned": false,
  "archived": false,
  "updatedAt": "2026-10-19T08:30:00Z"
}
` + "```" + `

## Rules

1. **` + "`" + `id` + "`" + `** is an opaque non-empty string, unique in the collection. On import a
   colliding id is replaced with a fresh one; the record is kept.
2. **` + "`" + `title` + "`" + ` and ` + "`" + `content` + "`" + `** are required and must not be blank. Leading and
   trailing whitespace is trimmed when a note is saved.
3. **` + "`" + `pinned` + "`" + ` and ` + "`" + `archived` + "`" + `** are JSON booleans (not strings, not 0/1).
4. **` + "`" + `updatedAt` + "`" + `** is an RFC 3339 timestamp. It is set by the server on every
   create, update, pin or archive.
5. Archived notes appear only in the ` + "`" + `archived` + "`" + ` view. The ` + "`" + `pinned` + "`" + ` view shows
   pinned notes that are not archived.
6. Lists are ordered pinned first, then most recently updated first.

## Backup files

- A backup is a JSON array of records, pretty-printed with two-space indent.
- The import file must be JSON (name ends in ` + "`" + `.json` + "`" + ` or content type contains
  ` + "`" + `json` + "`" + `) and at most 10MB.
- An empty array is rejected as "nothing to import".
- Invalid records are skipped and reported; if none are valid the whole import is rejected.
- Imported notes are placed before the existing ones.

## Tools

- ` + "`" + `list_notes` + "`" + ` (filter: all | pinned | archived, query: case-insensitive substring)
- ` + "`" + `get_note` + "`" + `, ` + "`" + `create_note` + "`" + `, ` + "`" + `update_note` + "`" + `, ` + "`" + `delete_note` + "`" + `
- ` + "`" + `toggle_pin` + "`" + `, ` + "`" + `toggle_archive` + "`" + `
- ` + "`" + `export_notes` + "`" + `, ` + "`" + `import_notes` + "`" + ` (json: the backup array as a string)
`
