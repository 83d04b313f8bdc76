package model

import "encoding/xml"

// OPFPackage is the root element of OEBPS/content.opf.
type OPFPackage struct {
	XMLName          xml.Name `xml:"package"`
	Xmlns            string   `xml:"xmlns,attr"`
	Version          string   `xml:"version,attr"`
	UniqueIdentifier string   `xml:"unique-identifier,attr"`

	Metadata *Metadata `xml:"metadata"`
	Manifest *Manifest `xml:"manifest"`
	Spine    *Spine    `xml:"spine"`
}

func (p *OPFPackage) Marshal() (string, error) {
	xmlBytes, err := xml.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", err
	}
	return xml.Header + string(xmlBytes), nil
}

// Metadata carries the Dublin Core elements plus EPUB3 <meta> extensions.
type Metadata struct {
	XmlnsDC string `xml:"xmlns:dc,attr"`

	Titles       []DCValue `xml:"dc:title"`
	Identifiers  []DCValue `xml:"dc:identifier"`
	Languages    []DCValue `xml:"dc:language"`
	Creators     []DCValue `xml:"dc:creator"`
	Descriptions []DCValue `xml:"dc:description"`
	Metas        []Meta    `xml:"meta"`
}

type DCValue struct {
	Value string `xml:",chardata"`
	ID    string `xml:"id,attr,omitempty"`
}

type Meta struct {
	Name     string `xml:"name,attr,omitempty"`
	Content  string `xml:"content,attr,omitempty"`
	Property string `xml:"property,attr,omitempty"`
	Value    string `xml:",chardata"`
}

type Manifest struct {
	Items []ManifestItem `xml:"item"`
}

type ManifestItem struct {
	ID         string `xml:"id,attr"`
	Link       string `xml:"href,attr"`
	Media      string `xml:"media-type,attr,omitempty"`
	Properties string `xml:"properties,attr,omitempty"`
}

type Spine struct {
	Toc   string      `xml:"toc,attr,omitempty"`
	Items []SpineItem `xml:"itemref"`
}

type SpineItem struct {
	IDref string `xml:"idref,attr"`
}
