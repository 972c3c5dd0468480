package ingest

import (
	"fmt"
	"go/ast"
	"go/token"
	"sort"
	"strings"

	"github.com/dshills/ct/internal/fingerprint"
	"github.com/dshills/ct/internal/status"
	"github.com/dshills/ct/pkg/types"
)

const defaultReferenceCeiling = 16

// ParsedFile is the output of parsing one source file: the symbols,
// impl groupings, and sparse references found in it. The file's
// content digest stays with the caller, which supplied it.
type ParsedFile struct {
	Symbols    []*types.Symbol
	Impls      []*types.ImplRecord
	References []*types.Reference
	// RefOwners[i] is the index into Symbols of the symbol that owns
	// References[i]; references are staged before symbol row ids
	// exist, so the caller resolves Reference.SymbolID after upsert.
	RefOwners []int
}

// extractor walks one file's AST, accumulating symbols scoped to the
// owning unit's canonical-path namespace.
type extractor struct {
	fset         *token.FileSet
	unitName     string
	fileDigest   string
	content      []byte
	refCeiling   int
	symbols      []*types.Symbol
	implsByRecv  map[string]*types.ImplRecord
	implOrder    []string
	references   []*types.Reference
	refOwners    []int
}

// ParseFile turns one Go source file's already-parsed AST into catalog
// rows. The file must already have been read; content and its digest
// are supplied by the caller so the pipeline only reads each file once.
func ParseFile(fset *token.FileSet, file *ast.File, unitName, fileDigest string, content []byte, refCeiling int) (*ParsedFile, error) {
	if refCeiling <= 0 {
		refCeiling = defaultReferenceCeiling
	}
	ex := &extractor{
		fset:        fset,
		unitName:    unitName,
		fileDigest:  fileDigest,
		content:     content,
		refCeiling:  refCeiling,
		implsByRecv: make(map[string]*types.ImplRecord),
	}

	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if err := ex.extractFunc(d); err != nil {
				return nil, err
			}
		case *ast.GenDecl:
			if err := ex.extractGenDecl(d); err != nil {
				return nil, err
			}
		}
	}

	impls := make([]*types.ImplRecord, 0, len(ex.implOrder))
	for _, recv := range ex.implOrder {
		impls = append(impls, ex.implsByRecv[recv])
	}

	return &ParsedFile{Symbols: ex.symbols, Impls: impls, References: ex.references, RefOwners: ex.refOwners}, nil
}

func (e *extractor) extractFunc(decl *ast.FuncDecl) error {
	kind := types.KindFn
	segments := []string{decl.Name.Name}
	var recv string
	if decl.Recv != nil && len(decl.Recv.List) > 0 {
		kind = types.KindMethod
		recv = exprToString(decl.Recv.List[0].Type)
		segments = []string{strings.TrimPrefix(recv, "*"), decl.Name.Name}
	}

	start, end := e.lineSpan(decl.Pos(), decl.End())
	sym, err := e.newSymbol(segments, decl.Name.Name, kind, docText(decl.Doc), e.functionSignature(decl), start, end)
	if err != nil {
		return err
	}
	e.symbols = append(e.symbols, sym)

	if recv != "" {
		e.noteImpl(strings.TrimPrefix(recv, "*"), start, end)
	}

	e.collectReferences(len(e.symbols)-1, decl.Body)
	return nil
}

func (e *extractor) extractGenDecl(decl *ast.GenDecl) error {
	for _, spec := range decl.Specs {
		switch s := spec.(type) {
		case *ast.TypeSpec:
			if err := e.extractTypeSpec(s, decl.Doc); err != nil {
				return err
			}
		case *ast.ValueSpec:
			if err := e.extractValueSpec(s, decl.Doc, decl.Tok); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *extractor) extractTypeSpec(spec *ast.TypeSpec, doc *ast.CommentGroup) error {
	start, end := e.lineSpan(spec.Pos(), spec.End())
	name := spec.Name.Name

	var kind types.SymbolKind
	var sig string
	switch spec.Type.(type) {
	case *ast.StructType:
		kind = types.KindStruct
		sig = fmt.Sprintf("type %s struct", name)
	case *ast.InterfaceType:
		kind = types.KindTrait
		sig = fmt.Sprintf("type %s interface", name)
	default:
		kind = types.KindTypeAlias
		sig = fmt.Sprintf("type %s %s", name, exprToString(spec.Type))
	}

	sym, err := e.newSymbol([]string{name}, name, kind, docText(doc), sig, start, end)
	if err != nil {
		return err
	}
	e.symbols = append(e.symbols, sym)

	if structType, ok := spec.Type.(*ast.StructType); ok {
		return e.extractFields(name, structType)
	}
	return nil
}

func (e *extractor) extractFields(structName string, st *ast.StructType) error {
	if st.Fields == nil {
		return nil
	}
	for _, field := range st.Fields.List {
		typeStr := exprToString(field.Type)
		for _, fname := range field.Names {
			start, end := e.lineSpan(field.Pos(), field.End())
			sig := fmt.Sprintf("%s %s", fname.Name, typeStr)
			sym, err := e.newSymbol([]string{structName, fname.Name}, fname.Name, types.KindField, docText(field.Doc), sig, start, end)
			if err != nil {
				return err
			}
			e.symbols = append(e.symbols, sym)
		}
	}
	return nil
}

func (e *extractor) extractValueSpec(spec *ast.ValueSpec, doc *ast.CommentGroup, tok token.Token) error {
	kind := types.KindStatic
	if tok == token.CONST {
		kind = types.KindConst
	}
	start, end := e.lineSpan(spec.Pos(), spec.End())
	for _, name := range spec.Names {
		var sig string
		switch {
		case spec.Type != nil:
			sig = fmt.Sprintf("%s %s", name.Name, exprToString(spec.Type))
		case len(spec.Values) > 0:
			sig = fmt.Sprintf("%s = ...", name.Name)
		default:
			sig = name.Name
		}
		sym, err := e.newSymbol([]string{name.Name}, name.Name, kind, docText(doc), sig, start, end)
		if err != nil {
			return err
		}
		e.symbols = append(e.symbols, sym)
	}
	return nil
}

func (e *extractor) newSymbol(segments []string, name string, kind types.SymbolKind, docs, sig string, start, end int) (*types.Symbol, error) {
	canonical := types.CanonicalPath(e.unitName, segments...)
	symbolID, err := fingerprint.SymbolID(canonical, string(kind), e.fileDigest, start, end)
	if err != nil {
		return nil, fmt.Errorf("ingest: symbol id for %s: %w", canonical, err)
	}
	spanText := e.spanText(start, end)
	defHash, err := fingerprint.DefHash(sig, spanText)
	if err != nil {
		return nil, fmt.Errorf("ingest: def hash for %s: %w", canonical, err)
	}

	visibility := types.VisibilityPrivate
	if types.IsExported(name) {
		visibility = types.VisibilityPublic
	}

	st := status.Classify(spanText)
	if kind != types.KindFn && kind != types.KindMethod {
		st = types.StatusImplemented
	}

	return &types.Symbol{
		SymbolID:      symbolID,
		CanonicalPath: canonical,
		Name:          name,
		Kind:          kind,
		Visibility:    visibility,
		Signature:     sig,
		Docs:          docs,
		Status:        st,
		SpanStart:     start,
		SpanEnd:       end,
		DefHash:       defHash,
	}, nil
}

func (e *extractor) noteImpl(forPath string, start, end int) {
	canonicalFor := types.CanonicalPath(e.unitName, forPath)
	rec, ok := e.implsByRecv[canonicalFor]
	if !ok {
		rec = &types.ImplRecord{ForPath: canonicalFor, LineStart: start, LineEnd: end}
		e.implsByRecv[canonicalFor] = rec
		e.implOrder = append(e.implOrder, canonicalFor)
		return
	}
	if start < rec.LineStart {
		rec.LineStart = start
	}
	if end > rec.LineEnd {
		rec.LineEnd = end
	}
}

// collectReferences walks a function body for call expressions,
// recording a best-effort sparse edge per unique callee name up to
// refCeiling — the Go analogue of spec §4 "Reference extractor":
// best-effort, bounded-per-symbol.
func (e *extractor) collectReferences(ownerIndex int, body *ast.BlockStmt) {
	if body == nil {
		return
	}
	seen := make(map[string]bool)
	ast.Inspect(body, func(n ast.Node) bool {
		if len(seen) >= e.refCeiling {
			return false
		}
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		target := calleeName(call.Fun)
		if target == "" || seen[target] {
			return true
		}
		seen[target] = true
		start, end := e.lineSpan(call.Pos(), call.End())
		e.references = append(e.references, &types.Reference{
			TargetPath: target,
			SpanStart:  start,
			SpanEnd:    end,
		})
		e.refOwners = append(e.refOwners, ownerIndex)
		return true
	})
}

func calleeName(fun ast.Expr) string {
	switch f := fun.(type) {
	case *ast.Ident:
		return f.Name
	case *ast.SelectorExpr:
		return exprToString(f.X) + "." + f.Sel.Name
	default:
		return ""
	}
}

func (e *extractor) lineSpan(pos, end token.Pos) (int, int) {
	start := e.fset.Position(pos).Line
	finish := e.fset.Position(end).Line
	if finish < start {
		finish = start
	}
	return start, finish
}

func (e *extractor) spanText(start, end int) string {
	lines := strings.Split(string(e.content), "\n")
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start > end || start > len(lines) {
		return ""
	}
	return strings.Join(lines[start-1:end], "\n")
}

func (e *extractor) functionSignature(decl *ast.FuncDecl) string {
	var sb strings.Builder
	sb.WriteString("func ")
	if decl.Recv != nil && len(decl.Recv.List) > 0 {
		sb.WriteString("(")
		sb.WriteString(exprToString(decl.Recv.List[0].Type))
		sb.WriteString(") ")
	}
	sb.WriteString(decl.Name.Name)
	sb.WriteString("(")
	sb.WriteString(fieldListToString(decl.Type.Params))
	sb.WriteString(")")

	if decl.Type.Results != nil {
		results := fieldListToString(decl.Type.Results)
		if results != "" {
			if decl.Type.Results.NumFields() > 1 {
				sb.WriteString(" (")
				sb.WriteString(results)
				sb.WriteString(")")
			} else {
				sb.WriteString(" ")
				sb.WriteString(results)
			}
		}
	}
	return sb.String()
}

func fieldListToString(fl *ast.FieldList) string {
	if fl == nil || len(fl.List) == 0 {
		return ""
	}
	var parts []string
	for _, field := range fl.List {
		typeStr := exprToString(field.Type)
		if len(field.Names) == 0 {
			parts = append(parts, typeStr)
			continue
		}
		for _, name := range field.Names {
			parts = append(parts, fmt.Sprintf("%s %s", name.Name, typeStr))
		}
	}
	return strings.Join(parts, ", ")
}

func exprToString(expr ast.Expr) string {
	if expr == nil {
		return ""
	}
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return "*" + exprToString(t.X)
	case *ast.ArrayType:
		return "[]" + exprToString(t.Elt)
	case *ast.MapType:
		return fmt.Sprintf("map[%s]%s", exprToString(t.Key), exprToString(t.Value))
	case *ast.ChanType:
		return "chan " + exprToString(t.Value)
	case *ast.FuncType:
		return "func(...)"
	case *ast.InterfaceType:
		return "interface{}"
	case *ast.SelectorExpr:
		return exprToString(t.X) + "." + t.Sel.Name
	case *ast.Ellipsis:
		return "..." + exprToString(t.Elt)
	default:
		return "..."
	}
}

func docText(doc *ast.CommentGroup) string {
	if doc == nil {
		return ""
	}
	return strings.TrimSpace(doc.Text())
}

// sortSymbolsForInsert orders symbols the way spec §4.3 step 5
// requires: by canonical_path, then span_start.
func sortSymbolsForInsert(symbols []*types.Symbol) {
	sort.SliceStable(symbols, func(i, j int) bool {
		if symbols[i].CanonicalPath != symbols[j].CanonicalPath {
			return symbols[i].CanonicalPath < symbols[j].CanonicalPath
		}
		return symbols[i].SpanStart < symbols[j].SpanStart
	})
}
