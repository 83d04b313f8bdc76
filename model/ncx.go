package model

import "encoding/xml"

// TocNCX is the root element of OEBPS/toc.ncx.
type TocNCX struct {
	XMLName xml.Name `xml:"ncx"`
	Xmlns   string   `xml:"xmlns,attr"`
	Version string   `xml:"version,attr"`

	Head     *NCXHead `xml:"head"`
	DocTitle NCXText  `xml:"docTitle"`
	NavMap   *NavMap  `xml:"navMap"`
}

func (t *TocNCX) Marshal() (string, error) {
	xmlBytes, err := xml.MarshalIndent(t, "", "  ")
	if err != nil {
		return "", err
	}
	return xml.Header + string(xmlBytes), nil
}

type NCXHead struct {
	Meta []NCXHeadMeta `xml:"meta"`
}

type NCXHeadMeta struct {
	Name    string `xml:"name,attr"`
	Content string `xml:"content,attr"`
}

type NCXText struct {
	Text string `xml:"text"`
}

type NavMap struct {
	Points []*NavPoint `xml:"navPoint"`
}

type NavPoint struct {
	Id        string          `xml:"id,attr"`
	PlayOrder int             `xml:"playOrder,attr"`
	Label     string          `xml:"navLabel>text"`
	Content   NavPointContent `xml:"content"`
	Points    []*NavPoint     `xml:"navPoint"`
}

type NavPointContent struct {
	Src string `xml:"src,attr"`
}
